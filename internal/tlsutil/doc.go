// Package tlsutil 提供出站连接的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 由 Redis 快照镜像与 OpenAI 生成后端共用。
package tlsutil
