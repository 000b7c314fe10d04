package ui

import (
	"clipsheet/internal/progress"
	"clipsheet/internal/util/deps"
)

type depsCheckedMsg struct {
	Tools deps.Tools
	Err   error
}

type jobUpdateMsg struct {
	U progress.Update
}

type jobLogMsg struct {
	L progress.Log
}

type jobResultMsg struct {
	R progress.Result
}

type allDoneMsg struct{}
