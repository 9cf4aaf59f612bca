// Package upgrader 实现连接升级器
//
// # 升级流程
//
// 原始连接按以下顺序升级：
//
//  1. multistream 协议头 /nodehost/upgrade/1.0.0
//  2. 安全协议协商：双方交换有序的提议列表
//  3. 安全握手（Noise 或 TLS 1.3），验证对端身份
//  4. 多路复用器协商：在加密通道上交换提议列表
//  5. 多路复用器包装加密通道，得到 Session
//
// 两次协商都由发起方先写出提议。发起方用注册表的 Resolve 选择，
// 响应方用 capability.Negotiate(发起方提议, 本地列表) 选择，
// 因此双方总是得到发起方顺序中第一个双方都支持的标识。
//
// # 线格式
//
// 提议是 protobuf 线格式的消息，带 varint 长度前缀：
//
//	field 1 (varint)  能力类别
//	field 2 (bytes)   能力标识，可重复，按偏好排序
//
// # 失败处理
//
// 任何失败都会关闭原始连接；已知对端身份时下调其健康分。
// 超时（handshakeTimeout 或调用方 ctx）返回 types.ErrUpgradeTimeout。
package upgrader
