package httpapi

import (
	"net/http"
	"strings"

	"ndjobi.org/internal/ctxstore"
	"ndjobi.org/internal/domain"
)

type createConversationRequest struct {
	TenantID     string               `json:"tenant_id"`
	NetworkID    string               `json:"network_id"`
	Participants []domain.Participant `json:"participants"`
}

type createThreadRequest struct {
	TenantID     string               `json:"tenant_id"`
	NetworkID    string               `json:"network_id"`
	Subject      string               `json:"subject"`
	Participants []domain.Participant `json:"participants"`
}

type sendMessageRequest struct {
	SenderAppID   string `json:"sender_app_id"`
	SenderActorID string `json:"sender_actor_id"`
	Content       string `json:"content"`
}

type markReadRequest struct {
	AppID string `json:"app_id"`
}

// scope picks the tenant and network a request targets: query parameters first,
// then the context headers, then the active execution context.
func (a *API) scope(r *http.Request) (string, string) {
	q := r.URL.Query()
	tenant := strings.TrimSpace(q.Get("tenant_id"))
	network := strings.TrimSpace(q.Get("network_id"))
	if tenant == "" {
		tenant = strings.TrimSpace(r.Header.Get(ctxstore.HeaderTenant))
	}
	if network == "" {
		network = strings.TrimSpace(r.Header.Get(ctxstore.HeaderNetwork))
	}
	if tenant != "" && network != "" {
		return tenant, network
	}

	appID := strings.TrimSpace(r.Header.Get(ctxstore.HeaderAppID))
	if appID == "" && a.contexts != nil {
		ec := a.contexts.Load(r.Context())
		appID = ec.AppID
		if tenant == "" {
			tenant = ec.TenantID
		}
		if network == "" {
			network = ec.NetworkID
		}
	}
	if appID == "" {
		appID = a.catalog.DefaultAppID()
	}
	if app, ok := a.catalog.GetApp(appID); ok {
		if tenant == "" {
			tenant = app.TenantID
		}
		if network == "" {
			network = app.NetworkID
		}
	}
	return tenant, network
}

func (a *API) handleConversationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenant, network := a.scope(r)
		writeJSON(w, http.StatusOK, map[string]any{
			"items":      a.platform.GetConversations(tenant, network),
			"tenant_id":  tenant,
			"network_id": network,
		})
	case http.MethodPost:
		var req createConversationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if len(req.Participants) == 0 {
			writeError(w, r, http.StatusBadRequest, "participants are required")
			return
		}
		tenant, network := a.bodyScope(r, req.TenantID, req.NetworkID)
		conv := a.platform.CreateConversation(tenant, network, req.Participants)
		writeJSON(w, http.StatusCreated, conv)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleConversationResource serves /v1/conversations/{id} and /v1/conversations/{id}/messages.
func (a *API) handleConversationResource(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/conversations/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		conv, ok := a.platform.GetConversation(parts[0])
		if !ok {
			writeError(w, r, http.StatusNotFound, "conversation not found")
			return
		}
		writeJSON(w, http.StatusOK, conv)
	case len(parts) == 2 && parts[1] == "messages":
		a.conversationMessages(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) conversationMessages(w http.ResponseWriter, r *http.Request, convID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.platform.GetConversation(convID); !ok {
			writeError(w, r, http.StatusNotFound, "conversation not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": a.platform.GetMessages(convID)})
	case http.MethodPost:
		req, ok := a.decodeMessage(w, r)
		if !ok {
			return
		}
		msg, ok := a.platform.SendMessage(convID, req.SenderAppID, req.SenderActorID, req.Content)
		if !ok {
			writeError(w, r, http.StatusNotFound, "conversation not found")
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleThreadsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenant, network := a.scope(r)
		writeJSON(w, http.StatusOK, map[string]any{
			"items":      a.platform.GetThreads(tenant, network),
			"tenant_id":  tenant,
			"network_id": network,
		})
	case http.MethodPost:
		var req createThreadRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Subject) == "" {
			writeError(w, r, http.StatusBadRequest, "subject is required")
			return
		}
		if len(req.Participants) == 0 {
			writeError(w, r, http.StatusBadRequest, "participants are required")
			return
		}
		tenant, network := a.bodyScope(r, req.TenantID, req.NetworkID)
		th := a.platform.CreateThread(tenant, network, req.Subject, req.Participants)
		writeJSON(w, http.StatusCreated, th)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleThreadResource serves /v1/threads/{id}, /v1/threads/{id}/messages
// and /v1/threads/{id}/messages/{messageID}/read.
func (a *API) handleThreadResource(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/threads/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		th, ok := a.platform.GetThread(parts[0])
		if !ok {
			writeError(w, r, http.StatusNotFound, "thread not found")
			return
		}
		writeJSON(w, http.StatusOK, th)
	case len(parts) == 2 && parts[1] == "messages":
		a.threadMessages(w, r, parts[0])
	case len(parts) == 4 && parts[1] == "messages" && parts[3] == "read":
		a.markRead(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) threadMessages(w http.ResponseWriter, r *http.Request, threadID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.platform.GetThread(threadID); !ok {
			writeError(w, r, http.StatusNotFound, "thread not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": a.platform.GetThreadMessages(threadID)})
	case http.MethodPost:
		req, ok := a.decodeMessage(w, r)
		if !ok {
			return
		}
		msg, ok := a.platform.SendThreadMessage(threadID, req.SenderAppID, req.SenderActorID, req.Content)
		if !ok {
			writeError(w, r, http.StatusNotFound, "thread not found")
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request, threadID, messageID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req markReadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	appID := strings.TrimSpace(req.AppID)
	if appID == "" {
		appID = strings.TrimSpace(r.Header.Get(ctxstore.HeaderAppID))
	}
	if appID == "" {
		writeError(w, r, http.StatusBadRequest, "app_id is required")
		return
	}

	inThread := false
	for _, m := range a.platform.GetThreadMessages(threadID) {
		if m.ID == messageID {
			inThread = true
			break
		}
	}
	if !inThread {
		writeError(w, r, http.StatusNotFound, "thread message not found")
		return
	}
	msg, ok := a.platform.MarkThreadMessageRead(messageID, appID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "thread message not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (a *API) handleStoreReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.platform.Reset()
	a.auditEvent(r.Context(), "store.reset", map[string]any{"remote_ip": clientIP(r)})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) decodeMessage(w http.ResponseWriter, r *http.Request) (sendMessageRequest, bool) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return req, false
	}
	req.SenderAppID = strings.TrimSpace(req.SenderAppID)
	if req.SenderAppID == "" {
		req.SenderAppID = strings.TrimSpace(r.Header.Get(ctxstore.HeaderAppID))
	}
	if req.SenderAppID == "" {
		writeError(w, r, http.StatusBadRequest, "sender_app_id is required")
		return req, false
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, r, http.StatusBadRequest, "content is required")
		return req, false
	}
	return req, true
}

func (a *API) bodyScope(r *http.Request, tenant, network string) (string, string) {
	tenant = strings.TrimSpace(tenant)
	network = strings.TrimSpace(network)
	if tenant != "" && network != "" {
		return tenant, network
	}
	defTenant, defNetwork := a.scope(r)
	if tenant == "" {
		tenant = defTenant
	}
	if network == "" {
		network = defNetwork
	}
	return tenant, network
}

func splitPath(p, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(p, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
