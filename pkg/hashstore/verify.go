package hashstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// VerifyReport holds the outcome of a Verify walk, grouped the way the
// teacher's fsck command groups its consistency findings.
type VerifyReport struct {
	// OrphanPidRefs are pid-refs files whose cid has no cid-refs file.
	OrphanPidRefs []string

	// OrphanCidRefs are cid-refs files that list no pid. A non-empty
	// cid-refs file with no backing object is reported under
	// MissingObjects instead.
	OrphanCidRefs []string

	// MissingObjects are cid-refs files whose object file is absent.
	MissingObjects []string
}

// HasIssues reports whether the walk found any inconsistency at all.
func (r *VerifyReport) HasIssues() bool {
	return len(r.OrphanPidRefs)+len(r.OrphanCidRefs)+len(r.MissingObjects) > 0
}

// Verify walks refs/pids and refs/cids, cross-checking each against the
// object tree, and reports every inconsistency it finds (orphan
// pid-refs, empty cid-refs, non-empty cid-refs pointing at a missing
// object). It does not repair anything; callers decide what to do with
// the report. This supplements §4.F's single-pid find_object check with
// a whole-store sweep, grounded in the teacher's fsck walk over nars and
// chunks.
func (s *Store) Verify(ctx context.Context) (*VerifyReport, error) {
	_, span := tracer.Start(ctx, "hashstore.Verify", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	report := &VerifyReport{}

	pidsRoot := filepath.Join(s.root, "refs", "pids")

	err := filepath.WalkDir(pidsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		cid := strings.TrimSpace(string(b))

		cidRefsPath, pathErr := s.refs.CidRefsPath(cid)
		if pathErr != nil {
			return nil //nolint:nilerr
		}

		if _, refsErr := s.refs.ReadCidRefs(ctx, cidRefsPath); refsErr != nil {
			report.OrphanPidRefs = append(report.OrphanPidRefs, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	cidsRoot := filepath.Join(s.root, "refs", "cids")

	err = filepath.WalkDir(cidsRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		cid := cidFromRefsPath(cidsRoot, path)

		objPath, pathErr := s.objs.ObjectPath(cid)
		if pathErr != nil {
			return nil //nolint:nilerr
		}

		pids, refsErr := s.refs.ReadCidRefs(ctx, path)
		if refsErr != nil {
			return refsErr
		}

		if len(pids) == 0 {
			report.OrphanCidRefs = append(report.OrphanCidRefs, path)

			return nil
		}

		if !s.objs.Exists(objPath) {
			report.MissingObjects = append(report.MissingObjects, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

func cidFromRefsPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}

	return strings.ReplaceAll(rel, string(filepath.Separator), "")
}

