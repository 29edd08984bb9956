package feed

// paginate 取出第 page 頁（從 1 開始），回傳該頁與是否還有下一頁
func paginate[T any](items []T, page, pageSize int) ([]T, bool) {
	if page < 1 || pageSize < 1 || page > pages(len(items), pageSize) {
		return []T{}, false
	}
	start := (page - 1) * pageSize
	end := min(start+pageSize, len(items))
	return items[start:end], end < len(items)
}

// hasMore 依總筆數判斷是否還有下一頁
func hasMore(total, page, pageSize int) bool {
	return pageSize > 0 && page < pages(total, pageSize)
}

// pages 總頁數，以除法計算避免 page*pageSize 溢位
func pages(total, pageSize int) int {
	n := total / pageSize
	if total%pageSize != 0 {
		n++
	}
	return n
}
