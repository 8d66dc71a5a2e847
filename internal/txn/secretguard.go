package txn

import (
	"fmt"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// secretDetector is built once and reused across every Commit; gitleaks'
// default ruleset does not depend on this task's working tree.
var (
	secretDetectorOnce sync.Once
	secretDetector     *detect.Detector
	secretDetectorErr  error
)

func getSecretDetector() (*detect.Detector, error) {
	secretDetectorOnce.Do(func() {
		secretDetector, secretDetectorErr = detect.NewDetectorDefaultConfig()
	})
	return secretDetector, secretDetectorErr
}

// scanForSecrets runs gitleaks' default ruleset over a file's post-commit
// content. A finding does not roll back the transaction or fail Commit:
// Commit logs a warning and records the findings in journal metadata under
// secretFindingsMetadataKey, then completes normally.
func scanForSecrets(path string, content []byte) ([]string, error) {
	if len(content) == 0 {
		return nil, nil
	}
	detector, err := getSecretDetector()
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "initializing secret scanner")
	}
	findings := detector.Detect(detect.Fragment{Raw: string(content), FilePath: path})
	if len(findings) == 0 {
		return nil, nil
	}
	msgs := make([]string, 0, len(findings))
	for _, f := range findings {
		msgs = append(msgs, fmt.Sprintf("%s:%d: possible %s", path, f.StartLine, f.RuleID))
	}
	return msgs, nil
}
