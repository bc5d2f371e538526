package handler

import (
	"pairchat/internal/app/chat"
	"pairchat/internal/configs"
)

// AppDeps bundles the collaborators handlers need. It is constructed once at
// startup and passed by reference; nothing here is a global.
type AppDeps struct {
	Service  *chat.Service
	Registry *chat.Registry
	Config   *configs.AppConfig
}
