package capability

// Negotiate 返回 preferred 中第一个也出现在 supported 中的 ID
//
// 这是唯一的协商策略：发起方用 (本地列表, 对端列表) 调用，
// 响应方用 (发起方列表, 本地列表) 调用，二者得到同一个结果。
func Negotiate(preferred, supported []string) (string, bool) {
	if len(preferred) == 0 || len(supported) == 0 {
		return "", false
	}
	set := make(map[string]struct{}, len(supported))
	for _, id := range supported {
		set[id] = struct{}{}
	}
	for _, id := range preferred {
		if _, ok := set[id]; ok {
			return id, true
		}
	}
	return "", false
}
