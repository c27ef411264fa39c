package core

import "strings"

// ModuleID identifies a module. By convention it is a dotted namespace path
// such as "channel.telegram" or "stt.groq".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part of the ID after the first dot.
func (id ModuleID) Name() string {
	_, name, _ := strings.Cut(string(id), ".")
	return name
}

// Module is the minimal contract every omnihear module satisfies.
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}
