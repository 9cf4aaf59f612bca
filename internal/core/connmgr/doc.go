// Package connmgr 实现连接管理器
//
// # 状态机
//
// 每个节点在管理器中的状态：
//
//	Unknown → Dialing → Connected → Disconnected
//	                    Connected → Pruned → Disconnected
//
// # 准入
//
// Admit 是候选节点的唯一入口，AdmitInbound 是入站会话的唯一入口，
// 二者都经过同一把锁串行化。拨号与升级在锁外的独立协程中进行，
// 结果回到锁内应用。
//
// 已在 Dialing/Connected/Pruned 的节点重复 Admit 是空操作；
// 处于退避期的节点同样忽略。
//
// 会话数 + 拨号数 < maxPeers 时直接拨号；已满时只有当候选健康分高于
// 最低的可裁剪会话时才拨号（替换），下一次裁剪恢复上限。
//
// # 裁剪与维护
//
// 每 pollInterval 以及准入使会话数超过 maxPeers 时立即裁剪：
// 按健康分升序、最近活跃时间升序选择受害者，跳过受保护节点。
// 会话数 + 拨号数 < minPeers 时从地址簿补充拨号。
//
// # 关闭
//
// Shutdown 取消所有拨号，关闭所有会话并等待全部协程退出。
// 通知在释放锁之后投递。
package connmgr
