// Package graph 以 Neo4j 查詢關注關係
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jGraph 關注關係查詢
//
// 圖模型：(:User {id})-[:FOLLOWS]->(:User {id})，id 為 int64。
type Neo4jGraph struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jGraph 建立關注關係查詢
func NewNeo4jGraph(driver neo4j.DriverWithContext) *Neo4jGraph {
	return &Neo4jGraph{driver: driver}
}

// EnsureSchema 建立 User.id 唯一約束
func (g *Neo4jGraph) EnsureSchema(ctx context.Context) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("ensure neo4j schema: %w", err)
	}
	return nil
}

// FollowedAuthorIDs 觀看者關注的作者 ID
func (g *Neo4jGraph) FollowedAuthorIDs(ctx context.Context, viewerID int64) ([]int64, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (:User {id: $viewerId})-[:FOLLOWS]->(a:User) RETURN a.id AS authorId`,
			map[string]any{"viewerId": viewerID},
		)
		if err != nil {
			return nil, err
		}

		ids := make([]int64, 0)
		for res.Next(ctx) {
			v, _ := res.Record().Get("authorId")
			id, ok := toInt64(v)
			if !ok {
				continue
			}
			ids = append(ids, id)
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("followed authors of %d: %w", viewerID, err)
	}

	return result.([]int64), nil
}

// Follow 建立關注關係（冪等）
func (g *Neo4jGraph) Follow(ctx context.Context, followerID, authorID int64) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (a:User {id: $followerId})
			MERGE (b:User {id: $authorId})
			MERGE (a)-[r:FOLLOWS]->(b)
			ON CREATE SET r.created_at = datetime()
		`, map[string]any{"followerId": followerID, "authorId": authorID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("follow %d -> %d: %w", followerID, authorID, err)
	}
	return nil
}

// Ping 檢查連線
func (g *Neo4jGraph) Ping(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	}
	return 0, false
}

// Empty 未設定 Neo4j 時使用，沒有任何關注關係
type Empty struct{}

// FollowedAuthorIDs 一律回傳空集合
func (Empty) FollowedAuthorIDs(context.Context, int64) ([]int64, error) {
	return []int64{}, nil
}
