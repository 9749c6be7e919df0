package limits

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// CheckStatus is the outcome of one preflight check.
type CheckStatus string

const (
	StatusOK   CheckStatus = "ok"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check is a single preflight check result.
type Check struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message"`
}

// Report aggregates all preflight checks. CanProceed is false on any fail,
// and on any warn when strict mode is set.
type Report struct {
	Status     CheckStatus `json:"status"`
	Checks     []Check     `json:"checks"`
	CanProceed bool        `json:"can_proceed"`
	Summary    string      `json:"summary"`
}

// Preflight runs the pre-index checks: free disk space, write permission
// on the project directory, and the size of any existing index against
// MaxIndexSizeBytes. A fail forbids proceeding; a warn is non-fatal unless
// cfg.StrictMode.
func Preflight(ctx context.Context, cfg Config, projectDir, indexPath string) *Report {
	report := &Report{Status: StatusOK, CanProceed: true}

	report.add(checkDiskSpace(cfg, projectDir))
	report.add(checkWritePermission(projectDir))
	report.add(checkIndexSize(cfg, indexPath))

	for _, c := range report.Checks {
		switch c.Status {
		case StatusFail:
			report.Status = StatusFail
		case StatusWarn:
			if report.Status != StatusFail {
				report.Status = StatusWarn
			}
		}
	}

	if report.Status == StatusFail {
		report.CanProceed = false
	}
	if report.Status == StatusWarn && cfg.StrictMode {
		report.CanProceed = false
	}
	report.Summary = summarize(report)
	return report
}

func summarize(r *Report) string {
	var firstFail string
	warned := 0
	for _, c := range r.Checks {
		switch c.Status {
		case StatusFail:
			if firstFail == "" {
				firstFail = c.Message
			}
		case StatusWarn:
			warned++
		}
	}
	switch {
	case firstFail != "":
		return "pre-flight failed: " + firstFail
	case warned > 0:
		return fmt.Sprintf("pre-flight warnings: %d issue(s)", warned)
	default:
		return "all pre-flight checks passed"
	}
}

func (r *Report) add(c Check) {
	r.Checks = append(r.Checks, c)
}

func checkDiskSpace(cfg Config, dir string) Check {
	c := Check{Name: "disk_space"}

	free, err := freeDiskBytes(dir)
	if err != nil {
		c.Status = StatusWarn
		c.Message = fmt.Sprintf("cannot determine free disk space: %v", err)
		return c
	}

	switch {
	case free < cfg.MinFreeDiskBytes:
		c.Status = StatusFail
		c.Message = fmt.Sprintf("%d bytes free, need at least %d", free, cfg.MinFreeDiskBytes)
	case float64(cfg.MinFreeDiskBytes) > float64(free)*cfg.WarnThreshold:
		c.Status = StatusWarn
		c.Message = fmt.Sprintf("%d bytes free, close to the %d floor", free, cfg.MinFreeDiskBytes)
	default:
		c.Status = StatusOK
		c.Message = fmt.Sprintf("%d bytes free", free)
	}
	return c
}

func checkWritePermission(dir string) Check {
	c := Check{Name: "write_permissions"}

	probe := filepath.Join(dir, ".cerberus-preflight-probe")
	f, err := os.Create(probe)
	if err != nil {
		c.Status = StatusFail
		c.Message = fmt.Sprintf("cannot write to %s: %v", dir, err)
		return c
	}
	_ = f.Close()
	_ = os.Remove(probe)

	c.Status = StatusOK
	c.Message = "OK"
	return c
}

func checkIndexSize(cfg Config, indexPath string) Check {
	c := Check{Name: "index_size"}

	if indexPath == "" || indexPath == ":memory:" {
		c.Status = StatusOK
		c.Message = "no on-disk index"
		return c
	}

	info, err := os.Stat(indexPath)
	if os.IsNotExist(err) {
		c.Status = StatusOK
		c.Message = "no existing index"
		return c
	}
	if err != nil {
		c.Status = StatusWarn
		c.Message = fmt.Sprintf("cannot stat index: %v", err)
		return c
	}

	size := info.Size()
	switch {
	case size > cfg.MaxIndexSizeBytes:
		c.Status = StatusFail
		c.Message = fmt.Sprintf("index is %d bytes, cap is %d", size, cfg.MaxIndexSizeBytes)
	case float64(size) > float64(cfg.MaxIndexSizeBytes)*cfg.WarnThreshold:
		c.Status = StatusWarn
		c.Message = fmt.Sprintf("index is %d bytes, approaching the %d cap", size, cfg.MaxIndexSizeBytes)
	default:
		c.Status = StatusOK
		c.Message = fmt.Sprintf("index is %d bytes", size)
	}
	return c
}
