// Package supervisor 以 suture 監督樹管理長駐服務
//
// 樹狀結構：
//
//	engagement-feed (root)
//	├── background   同步 worker、NATS 消費者
//	└── api          HTTP 伺服器
//
// 任一服務 panic 或回傳錯誤時由所屬 supervisor 重啟，
// 連續失敗超過門檻後退避，不影響其他分支。
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig 監督樹配置
type TreeConfig struct {
	FailureThreshold float64       // 進入退避前允許的失敗次數，預設 5
	FailureDecay     float64       // 失敗計數衰減（秒），預設 30
	FailureBackoff   time.Duration // 退避時間，預設 15 秒
	ShutdownTimeout  time.Duration // 關閉時等待服務結束的上限，預設 10 秒
}

func (c *TreeConfig) setDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = 30
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 15 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Tree 監督樹
type Tree struct {
	root       *suture.Supervisor
	background *suture.Supervisor
	api        *suture.Supervisor
	config     TreeConfig
}

// NewTree 建立監督樹，事件以 slog 記錄
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	config.setDefaults()

	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	spec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = hook

	root := suture.New("engagement-feed", rootSpec)
	background := suture.New("background", spec)
	api := suture.New("api", spec)

	root.Add(background)
	root.Add(api)

	return &Tree{
		root:       root,
		background: background,
		api:        api,
		config:     config,
	}
}

// AddBackground 加入背景服務（同步 worker、事件消費者）
func (t *Tree) AddBackground(svc suture.Service) suture.ServiceToken {
	return t.background.Add(svc)
}

// AddAPI 加入對外服務
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve 阻塞執行直到 ctx 取消
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground 在背景執行，回傳結束時的錯誤
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport 關閉逾時後仍未結束的服務
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
