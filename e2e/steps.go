package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext carries the HTTP client, the signing key shared with the server
// under test, and per-scenario state (tokens, the current enrollment, the
// last response).
type TestContext struct {
	BaseURL    string
	SigningKey string
	client     *http.Client

	memberToken  string
	memberID     string
	enrollmentID string

	lastStatus int
	lastBody   map[string]any
}

func NewTestContext(baseURL, signingKey string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SigningKey: signingKey,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Reset clears per-scenario state so scenarios stay independent.
func (tc *TestContext) Reset() {
	tc.memberToken = ""
	tc.memberID = ""
	tc.enrollmentID = ""
	tc.lastStatus = 0
	tc.lastBody = nil
}

// mintToken issues an HS256 access token the same way the identity provider
// would. The server only checks the shared signing key, issuer, and audience.
func (tc *TestContext) mintToken(userID string, roles ...string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"roles":   roles,
		"iss":     "caregate",
		"aud":     "caregate",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
		"jti":     uuid.NewString(),
	})
	return token.SignedString([]byte(tc.SigningKey))
}

func (tc *TestContext) do(method, path, token string, body any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	tc.lastStatus = res.StatusCode
	tc.lastBody = nil
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if len(raw) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			tc.lastBody = decoded
		}
	}
	return nil
}

func (tc *TestContext) fetchEnrollmentStatus() (string, error) {
	if err := tc.do(http.MethodGet, "/enrollments/"+tc.enrollmentID, tc.memberToken, nil); err != nil {
		return "", err
	}
	if tc.lastStatus != http.StatusOK {
		return "", fmt.Errorf("get enrollment returned %d", tc.lastStatus)
	}
	enrollment, ok := tc.lastBody["enrollment"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("response has no enrollment object: %v", tc.lastBody)
	}
	status, _ := enrollment["status"].(string)
	return status, nil
}

// --- step definitions ---

func (tc *TestContext) theOrchestratorIsRunning() error {
	if err := tc.do(http.MethodGet, "/healthz", "", nil); err != nil {
		return err
	}
	if tc.lastStatus != http.StatusOK {
		return fmt.Errorf("healthz returned %d", tc.lastStatus)
	}
	return nil
}

func (tc *TestContext) iAuthenticateAsAMember() error {
	tc.memberID = uuid.NewString()
	token, err := tc.mintToken(tc.memberID, "member")
	if err != nil {
		return err
	}
	tc.memberToken = token
	return nil
}

func (tc *TestContext) createEnrollment(metadata map[string]string, token string) error {
	if err := tc.do(http.MethodPost, "/enrollments", token, map[string]any{"metadata": metadata}); err != nil {
		return err
	}
	if tc.lastStatus == http.StatusCreated {
		if created, ok := tc.lastBody["id"].(string); ok {
			tc.enrollmentID = created
		}
	}
	return nil
}

func (tc *TestContext) iCreateAnEnrollmentWithCompletePersonalDetails() error {
	return tc.createEnrollment(map[string]string{
		"full_name":     "Ada Nilsen",
		"date_of_birth": "1987-04-12",
		"contact_email": "ada.nilsen@example.com",
	}, tc.memberToken)
}

func (tc *TestContext) iCreateAnEnrollmentWithoutAContactEmail() error {
	return tc.createEnrollment(map[string]string{
		"full_name":     "Ada Nilsen",
		"date_of_birth": "1987-04-12",
	}, tc.memberToken)
}

func (tc *TestContext) iCreateAnEnrollmentWithoutAuthenticating() error {
	return tc.createEnrollment(map[string]string{
		"full_name":     "Ada Nilsen",
		"date_of_birth": "1987-04-12",
		"contact_email": "ada.nilsen@example.com",
	}, "")
}

func (tc *TestContext) iSubmitTheEnrollmentForDocumentCollection() error {
	return tc.do(http.MethodPost, "/enrollments/"+tc.enrollmentID+"/submit", tc.memberToken, nil)
}

func (tc *TestContext) iUploadADocument(docType string) error {
	content := []byte("%PDF-1.4 sample " + docType)
	if err := tc.do(http.MethodPost, "/enrollments/"+tc.enrollmentID+"/documents", tc.memberToken, map[string]any{
		"type":    docType,
		"content": content,
	}); err != nil {
		return err
	}
	if tc.lastStatus != http.StatusAccepted {
		return fmt.Errorf("upload returned %d: %v", tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) iRecordACompleteHealthDeclaration() error {
	return tc.do(http.MethodPost, "/enrollments/"+tc.enrollmentID+"/health-declaration", tc.memberToken, map[string]any{
		"answers": map[string]string{
			"chronic_conditions":  "none",
			"current_medications": "none",
			"allergies":           "pollen",
		},
	})
}

func (tc *TestContext) anAgentSchedulesAnInterview() error {
	token, err := tc.mintToken(uuid.NewString(), "agent")
	if err != nil {
		return err
	}
	if err := tc.do(http.MethodPost, "/enrollments/"+tc.enrollmentID+"/interview", token, map[string]any{
		"interviewer_id": uuid.NewString(),
		"scheduled_at":   time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}); err != nil {
		return err
	}
	if tc.lastStatus != http.StatusCreated {
		return fmt.Errorf("schedule interview returned %d: %v", tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) aMedicalReviewerCompletesTheInterview() error {
	token, err := tc.mintToken(uuid.NewString(), "medical")
	if err != nil {
		return err
	}
	if err := tc.do(http.MethodPost, "/enrollments/"+tc.enrollmentID+"/interview/complete", token, nil); err != nil {
		return err
	}
	if tc.lastStatus != http.StatusNoContent {
		return fmt.Errorf("complete interview returned %d: %v", tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) iCancelTheEnrollmentWithReason(reason string) error {
	return tc.do(http.MethodPost, "/enrollments/"+tc.enrollmentID+"/cancel", tc.memberToken, map[string]any{
		"reason": reason,
	})
}

func (tc *TestContext) theEnrollmentStatusIs(expected string) error {
	status, err := tc.fetchEnrollmentStatus()
	if err != nil {
		return err
	}
	if status != expected {
		return fmt.Errorf("expected enrollment status %q, got %q", expected, status)
	}
	return nil
}

func (tc *TestContext) withinSecondsTheEnrollmentStatusBecomes(seconds int, expected string) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	var last string
	for time.Now().Before(deadline) {
		status, err := tc.fetchEnrollmentStatus()
		if err != nil {
			return err
		}
		if status == expected {
			return nil
		}
		last = status
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("enrollment never reached %q within %ds, last status %q", expected, seconds, last)
}

func (tc *TestContext) theResponseStatusIs(expected int) error {
	if tc.lastStatus != expected {
		return fmt.Errorf("expected response status %d, got %d (body %v)", expected, tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) theResponseErrorCodeIs(expected string) error {
	code, _ := tc.lastBody["error"].(string)
	if code != expected {
		return fmt.Errorf("expected error code %q, got %q (body %v)", expected, code, tc.lastBody)
	}
	return nil
}

// RegisterSteps wires every step definition onto the scenario context.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^the orchestrator is running$`, tc.theOrchestratorIsRunning)
	ctx.Step(`^I authenticate as a member$`, tc.iAuthenticateAsAMember)
	ctx.Step(`^I create an enrollment with complete personal details$`, tc.iCreateAnEnrollmentWithCompletePersonalDetails)
	ctx.Step(`^I create an enrollment without a contact email$`, tc.iCreateAnEnrollmentWithoutAContactEmail)
	ctx.Step(`^I create an enrollment without authenticating$`, tc.iCreateAnEnrollmentWithoutAuthenticating)
	ctx.Step(`^I submit the enrollment for document collection$`, tc.iSubmitTheEnrollmentForDocumentCollection)
	ctx.Step(`^I upload a "([^"]*)" document$`, tc.iUploadADocument)
	ctx.Step(`^I record a complete health declaration$`, tc.iRecordACompleteHealthDeclaration)
	ctx.Step(`^an agent schedules an interview$`, tc.anAgentSchedulesAnInterview)
	ctx.Step(`^a medical reviewer completes the interview$`, tc.aMedicalReviewerCompletesTheInterview)
	ctx.Step(`^I cancel the enrollment with reason "([^"]*)"$`, tc.iCancelTheEnrollmentWithReason)
	ctx.Step(`^the enrollment status is "([^"]*)"$`, tc.theEnrollmentStatusIs)
	ctx.Step(`^within (\d+) seconds the enrollment status becomes "([^"]*)"$`, tc.withinSecondsTheEnrollmentStatusBecomes)
	ctx.Step(`^the response status is (\d+)$`, tc.theResponseStatusIs)
	ctx.Step(`^the response error code is "([^"]*)"$`, tc.theResponseErrorCodeIs)
}
