package version

import "fmt"

// Значения подставляются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает сборку сервиса.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get возвращает данные текущей сборки.
func Get() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// Short возвращает версию для health-ответов и CLI.
func Short() string { return version }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
