// Package interfaces 定义 nodehost 公共接口
//
// 所有可插拔能力（传输、加密、多路复用、发现）以及核心组件
// （身份、地址簿、会话、事件总线）的契约都在这里声明。
// 实现位于 internal/core/*，通过 fx 模块注入。
//
// 依赖方向：
//
//	pkg/types ← pkg/interfaces ← internal/core/* ← nodehost
package interfaces
