package posixfs

import (
	"fmt"
	"os/user"
	"strconv"
	"sync"
)

// The uid/gid name caches grow monotonically for the lifetime of the
// process and are the only shared mutable state in ddm; a single mutex
// serializes them. Scans resolve the same handful of owners thousands of
// times, so the hit rate is effectively 100% after the first few entries.
var (
	lookupMu    sync.Mutex
	userNames   = map[uint32]string{}
	groupNames  = map[uint32]string{}
	userIDs     = map[string]uint32{}
	groupIDs    = map[string]uint32{}
)

// LookupUser resolves a uid to a user name. Unknown uids resolve to their
// decimal representation rather than an error, so trees can be scanned on a
// host that does not know their owners.
func LookupUser(uid uint32) string {
	lookupMu.Lock()
	defer lookupMu.Unlock()
	if name, ok := userNames[uid]; ok {
		return name
	}
	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}
	userNames[uid] = name
	userIDs[name] = uid
	return name
}

// LookupGroup resolves a gid to a group name, with the same decimal
// fallback as LookupUser.
func LookupGroup(gid uint32) string {
	lookupMu.Lock()
	defer lookupMu.Unlock()
	if name, ok := groupNames[gid]; ok {
		return name
	}
	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(name); err == nil {
		name = g.Name
	}
	groupNames[gid] = name
	groupIDs[name] = gid
	return name
}

// LookupUID resolves a user name to a uid. Unlike LookupUser this direction
// must fail on unknown names: restoring ownership to a nonexistent user is
// an error, not a fallback.
func LookupUID(name string) (uint32, error) {
	lookupMu.Lock()
	defer lookupMu.Unlock()
	if uid, ok := userIDs[name]; ok {
		return uid, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		// A decimal name may have been stored by the scan-side fallback.
		if uid, perr := strconv.ParseUint(name, 10, 32); perr == nil {
			userIDs[name] = uint32(uid)
			return uint32(uid), nil
		}
		return 0, fmt.Errorf("user %s not found in the system", name)
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("user %s has non-numeric uid %q", name, u.Uid)
	}
	userIDs[name] = uint32(uid)
	userNames[uint32(uid)] = name
	return uint32(uid), nil
}

// LookupGID resolves a group name to a gid, failing on unknown names.
func LookupGID(name string) (uint32, error) {
	lookupMu.Lock()
	defer lookupMu.Unlock()
	if gid, ok := groupIDs[name]; ok {
		return gid, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		if gid, perr := strconv.ParseUint(name, 10, 32); perr == nil {
			groupIDs[name] = uint32(gid)
			return uint32(gid), nil
		}
		return 0, fmt.Errorf("group %s not found in the system", name)
	}
	gid, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("group %s has non-numeric gid %q", name, g.Gid)
	}
	groupIDs[name] = uint32(gid)
	groupNames[uint32(gid)] = name
	return uint32(gid), nil
}
