// Package issue fetches a GitHub ticket and extracts structured failure
// signals from its title/body (spec.md §4.5), gating to needs-human when no
// signal survives extraction.
package issue

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codorch/codorch/internal/types"
)

// ParseError is returned for malformed issue URLs or fetch failures.
type ParseError struct {
	msg string
}

func (e *ParseError) Error() string { return e.msg }

func newParseError(format string, args ...interface{}) error {
	return &ParseError{msg: fmt.Sprintf(format, args...)}
}

var (
	issueURLRe  = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/issues/(\d+)$`)
	exceptionRe = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*(?:Error|Exception|Failure|AssertionError))\b`)
	assertRe    = regexp.MustCompile(`(?i)assert(ion)?\s+failed|(?i)\bassert\b`)
	messageRe   = regexp.MustCompile(`(?i)(?:message|error|exception)\s*:\s*["']([^"']{3,200})["']`)
	constraintRe = regexp.MustCompile(`(?i)\b(must|cannot|can't|should|do not|don't|required|requirement)\b`)
	exitCodeRe  = regexp.MustCompile(`(?i)(?:exit code|exit|returns)\s+(-?\d+)`)

	// codeExtensionGlobs enumerates the whitelisted code-file suffix
	// patterns; matching goes through doublestar so the same matcher also
	// serves glob-shaped target_paths entered directly in a ticket body.
	codeExtensionGlobs = []string{
		"*.py", "*.c", "*.cc", "*.cpp", "*.h", "*.hpp", "*.js", "*.ts",
		"*.go", "*.rs", "*.java", "*.rb", "*.swift",
	}
	pathTokenRe = regexp.MustCompile(`[A-Za-z0-9_./\-]+\.[A-Za-z0-9]+`)
)

// ParseIssueURL extracts owner/repo/number from a strict GitHub issue URL.
func ParseIssueURL(rawURL string) (owner, repo string, number int, err error) {
	m := issueURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", 0, newParseError("issue: URL %q does not match github issue URL pattern", rawURL)
	}
	n, convErr := strconv.Atoi(m[3])
	if convErr != nil {
		return "", "", 0, newParseError("issue: URL %q has non-numeric issue number", rawURL)
	}
	return m[1], m[2], n, nil
}

// GitHubIssue is the subset of the GitHub issues API response we consume.
type GitHubIssue struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// FetchIssueJSON performs an authenticated GET against the GitHub issues
// API. The GITHUB_TOKEN environment variable, when set, is sent as a
// bearer token.
func FetchIssueJSON(client *http.Client, issueURL string) (*GitHubIssue, error) {
	owner, repo, number, err := ParseIssueURL(issueURL)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/issues/%d", owner, repo, number)
	req, err := http.NewRequest(http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, newParseError("issue: building request failed: %v", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "codorch-orchestrator")
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, newParseError("issue: fetch failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newParseError("issue: reading response failed: %v", err)
	}
	if resp.StatusCode >= 400 {
		return nil, newParseError("issue: fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed GitHubIssue
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, newParseError("issue: decoding response failed: %v", err)
	}
	return &parsed, nil
}

// ExtractFailureSignals scans combinedText for exception kinds, assertion
// mentions, quoted message substrings, and exit codes, deduplicating by
// tuple equality.
func ExtractFailureSignals(combinedText string) []types.FailureSignal {
	seen := make(map[string]bool)
	var signals []types.FailureSignal

	add := func(sig types.FailureSignal) {
		key := sig.Key()
		if !seen[key] {
			seen[key] = true
			signals = append(signals, sig)
		}
	}

	for _, m := range exceptionRe.FindAllString(combinedText, -1) {
		add(types.FailureSignal{ExceptionType: m})
	}
	if loc := assertRe.FindString(combinedText); loc != "" {
		add(types.FailureSignal{ExceptionType: "AssertionError", RawPattern: loc})
	}
	for _, m := range messageRe.FindAllStringSubmatch(combinedText, -1) {
		add(types.FailureSignal{MessageSubstring: m[1]})
	}
	for _, m := range exitCodeRe.FindAllStringSubmatch(combinedText, -1) {
		if code, err := strconv.Atoi(m[1]); err == nil {
			c := code
			add(types.FailureSignal{ExitCode: &c})
		}
	}

	return signals
}

// isCodePath reports whether p matches one of the whitelisted code-file
// extension globs, at any directory depth.
func isCodePath(p string) bool {
	for _, pattern := range codeExtensionGlobs {
		if ok, _ := doublestar.Match("**/"+pattern, p); ok {
			return true
		}
	}
	return false
}

// extractTargetPaths scans text for path-shaped tokens with a whitelisted
// code extension, returning sorted unique matches.
func extractTargetPaths(text string) []string {
	unique := make(map[string]bool)
	for _, tok := range pathTokenRe.FindAllString(text, -1) {
		if isCodePath(tok) {
			unique[tok] = true
		}
	}
	out := make([]string, 0, len(unique))
	for p := range unique {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// extractConstraints returns sorted unique lines of text matching the
// constraint-language regex.
func extractConstraints(text string) []string {
	unique := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if constraintRe.MatchString(trimmed) {
			unique[trimmed] = true
		}
	}
	out := make([]string, 0, len(unique))
	for l := range unique {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// NormalizeIssueSpec builds an IssueSpec from a fetched GitHub issue,
// extracting failure signals, constraints, and target paths. Status becomes
// needs-human when no failure signal survives extraction (B3).
func NormalizeIssueSpec(issueURL string, gh *GitHubIssue) (types.IssueSpec, error) {
	owner, repo, number, err := ParseIssueURL(issueURL)
	if err != nil {
		return types.IssueSpec{}, err
	}

	labels := make([]string, 0, len(gh.Labels))
	for _, l := range gh.Labels {
		labels = append(labels, l.Name)
	}

	combined := gh.Title + "\n" + gh.Body
	signals := ExtractFailureSignals(combined)

	spec := types.IssueSpec{
		IssueURL:               issueURL,
		RepoSlug:               owner + "/" + repo,
		IssueNumber:            number,
		Title:                  gh.Title,
		Body:                   gh.Body,
		Labels:                 labels,
		ExpectedFailureSignals: signals,
		Constraints:            extractConstraints(combined),
		TargetPaths:            extractTargetPaths(combined),
		Status:                 types.StatusOK,
	}

	if len(signals) == 0 {
		spec.Status = types.StatusNeedsHuman
		spec.NeedsHumanReason = "no structured failure signal found in issue title/body"
	}

	return spec, nil
}
