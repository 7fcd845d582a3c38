package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

const logindBusName = "org.freedesktop.login1"

// CheckDirectoryAccess verifies path is a directory the daemon can read and write.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableDir verifies path is a directory that can be listed.
func CheckReadableDir(name, path string) Result {
	entries, err := os.ReadDir(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", path, len(entries))}
}

// CheckI2CDevices reports how many i2c-dev nodes the current user can open
// read/write. DDC/CI needs at least one.
func CheckI2CDevices(devDir string) Result {
	const name = "DDC/CI (i2c-dev)"

	nodes, _ := filepath.Glob(filepath.Join(devDir, "i2c-*"))
	if len(nodes) == 0 {
		return Result{Name: name, Detail: "no i2c-dev nodes found (load the i2c-dev kernel module)"}
	}
	sort.Strings(nodes)

	var denied []string
	for _, node := range nodes {
		if err := unix.Access(node, unix.R_OK|unix.W_OK); err != nil {
			denied = append(denied, filepath.Base(node))
		}
	}
	usable := len(nodes) - len(denied)
	if usable == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%d nodes, none writable (add the user to the i2c group)", len(nodes))}
	}
	detail := fmt.Sprintf("%d of %d nodes accessible", usable, len(nodes))
	if len(denied) > 0 {
		detail += "; denied: " + strings.Join(denied, ", ")
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckBacklightAccess reports whether backlight devices exist and whether
// their brightness attribute is directly writable. Devices that are not
// writable still work through logind.
func CheckBacklightAccess(root string) Result {
	const name = "Backlight"

	entries, err := os.ReadDir(root)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", root, err)}
	}
	if len(entries) == 0 {
		return Result{Name: name, Passed: true, Detail: "no backlight devices (external displays only)"}
	}

	var writable, readOnly []string
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name(), "brightness")
		if err := unix.Access(path, unix.W_OK); err != nil {
			readOnly = append(readOnly, entry.Name())
			continue
		}
		writable = append(writable, entry.Name())
	}
	if len(readOnly) == 0 {
		return Result{Name: name, Passed: true, Detail: "writable: " + strings.Join(writable, ", ")}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("read-only: %s (writes go through logind)", strings.Join(readOnly, ", ")),
	}
}

// CheckLogind verifies logind owns its name on the system bus.
func CheckLogind(ctx context.Context) Result {
	const name = "logind"

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	conn, err := dbus.ConnectSystemBus(dbus.WithContext(checkCtx))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("system bus unavailable (%v)", err)}
	}
	defer conn.Close()

	var owned bool
	call := conn.BusObject().CallWithContext(checkCtx, "org.freedesktop.DBus.NameHasOwner", 0, logindBusName)
	if err := call.Store(&owned); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("name query failed (%v)", err)}
	}
	if !owned {
		return Result{Name: name, Detail: logindBusName + " not running"}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}
