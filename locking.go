package rssl

import "sync"

// locker is satisfied by *sync.Mutex and noLock.
type locker interface {
	Lock()
	Unlock()
	TryLock() bool
}

type noLock struct{}

func (noLock) Lock()         {}
func (noLock) Unlock()       {}
func (noLock) TryLock() bool { return true }

func newLocker(enabled bool) locker {
	if enabled {
		return &sync.Mutex{}
	}
	return noLock{}
}

func (lt LockingType) globalLocking() bool {
	return lt != LockNone
}

func (lt LockingType) channelLocking() bool {
	return lt == LockGlobalAndChannel
}

func (lt LockingType) valid() bool {
	return lt >= LockNone && lt <= LockGlobal
}

func (lt LockingType) String() string {
	switch lt {
	case LockNone:
		return "None"
	case LockGlobalAndChannel:
		return "GlobalAndChannel"
	case LockGlobal:
		return "Global"
	}
	return "Unknown"
}
