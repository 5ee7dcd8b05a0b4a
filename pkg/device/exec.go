package device

import (
	"fmt"
	"os/exec"
)

// ExecMounter is the production Mounter: it shells out to mount/umount,
// mirroring the original's "umount <device>*" / "umount -l" commands.
type ExecMounter struct{}

func (ExecMounter) Unmount(target string, lazy bool) error {
	args := []string{target}
	if lazy {
		args = []string{"-l", target}
	}
	cmd := exec.Command("umount", args...)
	return cmd.Run()
}

func (ExecMounter) Mount(source, target, fsType string, readOnly bool) error {
	args := []string{"-t", fsType}
	if readOnly {
		args = append(args, "-o", "ro")
	}
	args = append(args, source, target)
	cmd := exec.Command("mount", args...)
	return cmd.Run()
}

// ExecRescanner is the production Rescanner: it shells out to partprobe
// as the belt-and-suspenders second channel alongside the BLKRRPART ioctl.
type ExecRescanner struct{}

func (ExecRescanner) Partprobe(path string) error {
	cmd := exec.Command("partprobe", path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("partprobe %s: %w", path, err)
	}
	return nil
}

// RecordingMounter is a test Mounter that records calls instead of
// shelling out, per the "explicit collaborator interface with a test
// implementation that records calls" pattern in DESIGN NOTES.
type RecordingMounter struct {
	UnmountCalls []struct {
		Target string
		Lazy   bool
	}
	MountCalls []struct {
		Source, Target, FSType string
		ReadOnly                bool
	}
	UnmountErr error
	MountErr   error
}

func (r *RecordingMounter) Unmount(target string, lazy bool) error {
	r.UnmountCalls = append(r.UnmountCalls, struct {
		Target string
		Lazy   bool
	}{target, lazy})
	return r.UnmountErr
}

func (r *RecordingMounter) Mount(source, target, fsType string, readOnly bool) error {
	r.MountCalls = append(r.MountCalls, struct {
		Source, Target, FSType string
		ReadOnly                bool
	}{source, target, fsType, readOnly})
	return r.MountErr
}

// RecordingRescanner is a test Rescanner that records calls.
type RecordingRescanner struct {
	Calls []string
	Err   error
}

func (r *RecordingRescanner) Partprobe(path string) error {
	r.Calls = append(r.Calls, path)
	return r.Err
}
