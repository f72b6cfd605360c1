package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dialer-engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookProvider hands dials to an external carrier over HTTP and
// resolves them when the carrier posts a status callback. The dial POST
// carries the engine's call_id; the callback echoes it back so we can
// find the pending call.
type WebhookProvider struct {
	DialURL string
	Client  *http.Client

	mu      sync.Mutex
	pending map[string]pendingCall
}

type pendingCall struct {
	onResult ResultFunc
	placedAt time.Time
}

func NewWebhookProvider(dialURL string) *WebhookProvider {
	return &WebhookProvider{
		DialURL: dialURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		pending: make(map[string]pendingCall),
	}
}

func (p *WebhookProvider) Name() string { return "webhook" }

func (p *WebhookProvider) HealthCheck(ctx context.Context) error {
	if p.DialURL == "" {
		return fmt.Errorf("webhook provider: dial URL not configured")
	}
	return nil
}

// Pending reports how many placed calls still await a status callback.
func (p *WebhookProvider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

type dialPayload struct {
	CallID string `json:"call_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (p *WebhookProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) error {
	if req.OnResult == nil {
		return fmt.Errorf("place call %s: nil result callback", req.CallID)
	}

	p.mu.Lock()
	if _, dup := p.pending[req.CallID]; dup {
		p.mu.Unlock()
		return fmt.Errorf("place call %s: already pending", req.CallID)
	}
	p.pending[req.CallID] = pendingCall{onResult: req.OnResult, placedAt: time.Now()}
	p.mu.Unlock()

	body, err := json.Marshal(dialPayload{CallID: req.CallID, From: req.From, To: req.To})
	if err != nil {
		p.drop(req.CallID)
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.DialURL, bytes.NewReader(body))
	if err != nil {
		p.drop(req.CallID)
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		p.drop(req.CallID)
		return fmt.Errorf("place call %s: %w", req.CallID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		p.drop(req.CallID)
		return fmt.Errorf("place call %s: carrier returned %d", req.CallID, resp.StatusCode)
	}
	return nil
}

// Resolve delivers the terminal status for a pending call. It is
// idempotent: a second callback for the same call_id is a no-op.
func (p *WebhookProvider) Resolve(callID string, res CallResult) bool {
	p.mu.Lock()
	pc, ok := p.pending[callID]
	if ok {
		delete(p.pending, callID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	go pc.onResult(res)
	return true
}

func (p *WebhookProvider) drop(callID string) {
	p.mu.Lock()
	delete(p.pending, callID)
	p.mu.Unlock()
}

// StatusCallbackHandler converts the carrier's status callback to the
// internal result and resolves the pending call. Adapter only; no
// business logic here.
type StatusCallbackHandler struct {
	Provider *WebhookProvider
}

type statusCallbackForm struct {
	CallID          string `json:"call_id" form:"call_id"`
	Status          string `json:"status" form:"status"`
	Duration        string `json:"duration" form:"duration"`
	ProviderDetails string `json:"provider_details" form:"provider_details"`
}

func (h StatusCallbackHandler) HandleStatusCallback(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Provider == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "telephony provider not configured"})
		return
	}

	var form statusCallbackForm
	if err := c.ShouldBind(&form); err != nil {
		log.Warn("status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if form.CallID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	duration := 0
	if form.Duration != "" {
		d, err := strconv.Atoi(form.Duration)
		if err != nil || d < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
			return
		}
		duration = d
	}

	res := CallResult{
		Status:          ParseCallStatus(form.Status),
		DurationSeconds: duration,
		ProviderDetails: form.ProviderDetails,
	}
	if !h.Provider.Resolve(form.CallID, res) {
		log.Warn("status callback for unknown call", "call_id", form.CallID)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
