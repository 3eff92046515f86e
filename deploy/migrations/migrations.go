// Package migrations 内嵌 MySQL 的 SQL 迁移文件，按文件名前缀的版本号
// 依次执行。
package migrations

import "embed"

// Files 暴露所有 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
