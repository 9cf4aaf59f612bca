// Package nodehost 提供模块化的 P2P 节点主机
//
// 节点由一组可插拔组件构成：身份、地址簿、能力注册表（传输、安全、
// 多路复用、发现机制）、连接升级器、连接管理器与发现协调器。
// 组件通过 Fx 装配，由主机按固定顺序启动，并按严格相反的顺序停止：
//
//	启动：身份 → 注册表（封闭）→ 升级器 → 连接管理器 → 监听 → 发现
//	停止：发现 → 监听 → 连接管理器 → 事件总线
//
// # 快速开始
//
//	node, err := nodehost.Start(ctx,
//	    nodehost.WithListenAddrs("/ip4/0.0.0.0/tcp/4001"),
//	    nodehost.WithPeerBounds(8, 32),
//	)
//	if err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	sub, _ := node.Subscribe(new(types.EvtPeerConnected))
//	for evt := range sub.Out() {
//	    e := evt.(types.EvtPeerConnected)
//	    fmt.Println("connected", e.Peer)
//	}
//
// # 配置
//
// 默认配置见 config.NewConfig；也可以通过 WithConfigFile 加载 JSON 或 TOML 文件，
// 随后的 Option 在加载结果上继续修改。
package nodehost
