// Package version хранит информацию о сборке биллингового сервиса.
// Значения подставляются при сборке через -ldflags:
//
//	go build -ldflags "-X .../internal/version.version=v1.2.3 \
//	  -X .../internal/version.commit=$(git rev-parse --short HEAD) \
//	  -X .../internal/version.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки одним вызовом.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает хэш коммита сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// String возвращает человекочитаемую строку для логов и health-ответов.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
