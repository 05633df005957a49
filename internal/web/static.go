package web

import (
	"embed"
)

// staticFiles holds the control panel, the 360° viewer and their stylesheet.
//
//go:embed static/*
var staticFiles embed.FS
