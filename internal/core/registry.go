package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

var registry = struct {
	sync.RWMutex
	byID map[string]ModuleInfo
}{byID: make(map[string]ModuleInfo)}

// RegisterModule adds a module to the global registry. It panics on an empty
// ID, a nil constructor or a duplicate ID, so call it from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()

	if _, dup := registry.byID[string(info.ID)]; dup {
		panic(fmt.Sprintf("core: module already registered: %s", info.ID))
	}
	registry.byID[string(info.ID)] = info
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.byID[id]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	return filterModules(func(ModuleInfo) bool { return true })
}

// GetModulesByNamespace returns the modules whose ID lives under namespace,
// e.g. "stt" matches "stt.groq" and "stt.assemblyai".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	return filterModules(func(info ModuleInfo) bool {
		return info.ID.Namespace() == namespace && string(info.ID) != namespace
	})
}

func filterModules(keep func(ModuleInfo) bool) []ModuleInfo {
	registry.RLock()
	var out []ModuleInfo
	for _, info := range registry.byID {
		if keep(info) {
			out = append(out, info)
		}
	}
	registry.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	registry.byID = make(map[string]ModuleInfo)
}
