// Package host 实现节点主机
//
// Host 是各核心组件的门面：持有身份、能力注册表、升级器、连接管理器
// 与发现协调器，按固定顺序启动并按相反顺序停止。
//
// 启动顺序：
//
//	身份（构造时已就绪）→ 注册表封存 → 升级器 → 连接管理器 → 监听 → 发现 → EvtNodeStarted
//
// 停止顺序与之相反，每一步都等待完成：
//
//	发现停止 → 关闭监听并等待 accept 循环与入站升级 → 连接管理器关闭 → EvtNodeStopped
//
// 连接事件由连接管理器的通知转换而来，经事件总线发布，订阅者使用有缓冲通道，
// 发布方不会被慢消费者阻塞。
package host
