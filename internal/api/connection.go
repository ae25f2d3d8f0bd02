package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	State             string         `json:"state"`
	Connected         bool           `json:"connected"`
	ReconnectAttempts int            `json:"reconnect_attempts"`
	Broker            BrokerResponse `json:"broker"`
	Topics            []TopicBody    `json:"topics"`
	Lamp              any            `json:"lamp"`
}

// BrokerResponse describes the endpoint with the password redacted.
type BrokerResponse struct {
	URL      string `json:"url"`
	ClientID string `json:"client_id"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// TopicBody is a subscription in requests and responses.
type TopicBody struct {
	Name string `json:"name"`
	QoS  byte   `json:"qos"`
}

func topicBodies(topics []mqtt.Topic) []TopicBody {
	out := make([]TopicBody, 0, len(topics))
	for _, t := range topics {
		out = append(out, TopicBody{Name: t.Name, QoS: t.QoS})
	}
	return out
}

// handleStatus returns the connection state, endpoint, tracked topics and
// lamp state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	endpoint := s.manager.Endpoint().Redacted()

	writeJSON(w, http.StatusOK, StatusResponse{
		State:             s.manager.State().String(),
		Connected:         s.manager.IsConnected(),
		ReconnectAttempts: s.manager.ReconnectAttempts(),
		Broker: BrokerResponse{
			URL:      endpoint.URL(),
			ClientID: endpoint.ClientID,
			Username: endpoint.Username,
			Password: endpoint.Password,
		},
		Topics: topicBodies(s.manager.Topics()),
		Lamp:   s.lamp.State(),
	})
}

// handleConnect makes one connection attempt. Failure hands over to the
// retry loop; the response carries the resulting state either way.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.manager.Connect(r.Context())
	s.writeConnectionState(w)
}

// handleDisconnect closes the connection and cancels any retry.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.manager.Disconnect(s.disconnectTimeout)
	s.writeConnectionState(w)
}

// handleReInit tears down and re-opens the connection.
func (s *Server) handleReInit(w http.ResponseWriter, r *http.Request) {
	s.manager.ReInit(r.Context())
	s.writeConnectionState(w)
}

func (s *Server) writeConnectionState(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     s.manager.State().String(),
		"connected": s.manager.IsConnected(),
	})
}

// handleConnectionEvents lists recorded connection events.
func (s *Server) handleConnectionEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history storage is disabled")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	events, err := s.history.RecentConnections(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing connection events failed", "error", err)
		writeInternalError(w, "failed to list connection events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleListSubscriptions returns the tracked topics in subscription order.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	topics := topicBodies(s.manager.Topics())
	writeJSON(w, http.StatusOK, map[string]any{
		"topics": topics,
		"count":  len(topics),
	})
}

// handleSubscribe tracks a topic. It goes live immediately when connected
// and on every later reconnect.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body TopicBody
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	topic, err := mqtt.NewTopic(body.Name, body.QoS)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}
	if err := s.manager.SubscribeTo(topic); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, TopicBody{Name: topic.Name, QoS: topic.QoS})
}

// handleUnsubscribe stops tracking the topic named by the name query parameter.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeBadRequest(w, "name query parameter is required")
		return
	}

	tracked := false
	for _, t := range s.manager.Topics() {
		if t.Name == name {
			tracked = true
			break
		}
	}
	if !tracked {
		writeNotFound(w, "topic is not subscribed")
		return
	}

	if err := s.manager.UnsubscribeFrom(name); err != nil {
		if errors.Is(err, mqtt.ErrInvalidTopic) {
			writeValidationError(w, err.Error())
			return
		}
		writeInternalError(w, "unsubscribe failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseLimit reads the optional limit query parameter. Range clamping is
// left to the history store.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, "limit must be an integer")
		return 0, false
	}
	return limit, true
}
