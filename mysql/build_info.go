package mysql

import "runtime"

func init() {
	goos = runtime.GOOS
	goarch = runtime.GOARCH
}
