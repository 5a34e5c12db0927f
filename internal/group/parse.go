package group

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
)

// parseSnapshot builds a Snapshot from the given /etc/passwd and
// /etc/group paths. Both files use the traditional colon-delimited
// format; a malformed line is skipped rather than failing the whole
// parse, since a stray comment or blank line is common and shouldn't
// take the snapshot rebuild down with it.
func parseSnapshot(passwdPath, groupPath string) (*Snapshot, error) {
	primaryGID, err := parsePrimaryGIDs(passwdPath)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot()
	for uid, gid := range primaryGID {
		snap.add(gid, uid)
	}

	uidByName := make(map[string]uint32, len(primaryGID))
	if err := scanFile(passwdPath, func(fields []string) {
		if len(fields) < 3 {
			return
		}
		uid, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return
		}
		uidByName[fields[0]] = uint32(uid)
	}); err != nil {
		return nil, err
	}

	if err := scanFile(groupPath, func(fields []string) {
		if len(fields) < 4 {
			return
		}
		gid, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return
		}
		for _, name := range strings.Split(fields[3], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if uid, ok := uidByName[name]; ok {
				snap.add(uint32(gid), uid)
			}
		}
	}); err != nil {
		return nil, err
	}

	return snap, nil
}

func parsePrimaryGIDs(passwdPath string) (map[uint32]uint32, error) {
	out := make(map[uint32]uint32)
	err := scanFile(passwdPath, func(fields []string) {
		if len(fields) < 4 {
			return
		}
		uid, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return
		}
		gid, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return
		}
		out[uint32(uid)] = uint32(gid)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanFile(path string, fn func(fields []string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for s.Scan() {
		line := s.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fn(strings.Split(line, ":"))
	}
	if err := s.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}
