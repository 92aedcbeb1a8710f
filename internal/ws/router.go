package ws

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/chatwire/chatwire/internal/logging"
	"github.com/chatwire/chatwire/internal/monitoring"
	"github.com/chatwire/chatwire/internal/protocol"
	"github.com/chatwire/chatwire/internal/session"
)

// MaxContextBytes caps the serialized size of a context object.
const MaxContextBytes = 1 << 20

// Router dispatches inbound client frames against session state.
type Router struct {
	store   *session.Store
	streams *Orchestrator
	metrics *monitoring.Metrics
	logger  *logging.Logger
	version string
}

// NewRouter creates a message router. metrics may be nil.
func NewRouter(store *session.Store, streams *Orchestrator, metrics *monitoring.Metrics, logger *logging.Logger, version string) *Router {
	return &Router{
		store:   store,
		streams: streams,
		metrics: metrics,
		logger:  logger.Named("router"),
		version: version,
	}
}

// HandleFrame decodes and dispatches one client frame. It returns the
// session the connection is bound to afterwards, which changes only when an
// init frame rebinds the socket.
func (r *Router) HandleFrame(conn *Conn, sess *session.Session, data []byte) *session.Session {
	msg, err := protocol.Decode(data)
	if err != nil {
		_ = conn.Send(protocol.ErrorMessage{
			Code:      protocol.CodeServerError,
			Message:   err.Error(),
			Retryable: false,
		})
		return sess
	}

	if r.metrics != nil {
		r.metrics.RecordWSMessage("in", msg.MessageType())
	}

	// Everything except init needs the session to still exist; the sweeper
	// or an explicit destroy may have removed it under a live socket.
	if _, isInit := msg.(protocol.InitPayload); !isInit && !r.store.Exists(sess.ID()) {
		_ = conn.Send(protocol.NewError(protocol.CodeConnectionError, "Session no longer exists; reconnect to continue"))
		return sess
	}

	switch p := msg.(type) {
	case protocol.InitPayload:
		return r.handleInit(conn, sess, p)
	case protocol.ContextPayload:
		r.handleContext(sess, p)
	case protocol.MessagePayload:
		r.handleMessage(sess, p)
	case protocol.PingPayload:
		sess.Touch()
		sess.Send(protocol.PongMessage{})
	case protocol.AbortPayload:
		// No-op when nothing is active; the stream's error path reports
		// the cancellation.
		sess.AbortGeneration()
	case protocol.NewConversationPayload:
		sess.ClearConversation()
		sess.Send(protocol.StatusMessage{Status: protocol.StatusIdle})
	case protocol.ResetPayload:
		sess.Reset()
		sess.Send(protocol.StatusMessage{Status: protocol.StatusIdle})
	case protocol.FilePayload:
		r.handleFile(sess, p)
	case protocol.MetadataPayload:
		r.handleMetadata(sess, p)
	case protocol.InstructionsPayload:
		sess.SetInstructions(p.Content)
		sess.Send(protocol.ReadyMessage{})
	}
	return sess
}

// handleInit binds or creates the session named by clientId and moves the
// socket onto it. An init without a clientId refreshes the current binding,
// recreating the session if it has been destroyed under the socket.
func (r *Router) handleInit(conn *Conn, sess *session.Session, p protocol.InitPayload) *session.Session {
	target := sess
	switch {
	case p.ClientID != "" && p.ClientID != sess.ID():
		sess.Detach(conn)
		existing, ok := r.store.Get(p.ClientID)
		if ok {
			existing.AttachSocket(conn)
			target = existing
		} else {
			target = r.store.Create(session.CreateOptions{
				ClientID: p.ClientID,
				Socket:   conn,
			})
			if r.metrics != nil {
				r.metrics.SessionsCreated.Inc()
			}
		}
		r.logger.Info("Socket rebound",
			zap.String("from", sess.ID()),
			zap.String("to", target.ID()))
	case !r.store.Exists(sess.ID()):
		target = r.store.Create(session.CreateOptions{
			ClientID: sess.ID(),
			Socket:   conn,
		})
		if r.metrics != nil {
			r.metrics.SessionsCreated.Inc()
		}
		r.logger.Info("Session recreated on init",
			zap.String("session_id", sess.ID()))
	}

	if len(p.Metadata) > 0 {
		target.UpdateMetadata(p.Metadata, true)
	}
	target.Send(protocol.ConnectedMessage{SessionID: target.ID(), ServerVersion: r.version})
	return target
}

func (r *Router) handleContext(sess *session.Session, p protocol.ContextPayload) {
	serialized, err := sonic.Marshal(p.Data)
	if err != nil {
		sess.Send(protocol.NewError(protocol.CodeServerError, "Context is not serializable"))
		return
	}
	if len(serialized) > MaxContextBytes {
		sess.Send(protocol.NewError(protocol.CodeContextTooLarge,
			fmt.Sprintf("Context exceeds %d bytes", MaxContextBytes)))
		return
	}

	sess.Send(protocol.StatusMessage{Status: protocol.StatusProcessing})
	sess.SetContext(p.Data)
	sess.Send(protocol.ReadyMessage{ContextID: p.ContextID})
	sess.Send(protocol.StatusMessage{Status: protocol.StatusIdle})
}

func (r *Router) handleMessage(sess *session.Session, p protocol.MessagePayload) {
	if p.Content == "" || p.MessageID == "" {
		sess.Send(protocol.ErrorMessage{
			Code:      protocol.CodeServerError,
			Message:   "Message content and messageId are required",
			MessageID: p.MessageID,
			Retryable: false,
		})
		return
	}
	if len([]rune(p.Content)) > protocol.MaxMessageLength {
		sess.Send(protocol.NewMessageError(protocol.CodeMessageTooLong,
			fmt.Sprintf("Message exceeds %d characters", protocol.MaxMessageLength), p.MessageID))
		return
	}
	r.streams.Start(sess, p)
}

// handleFile accepts text-like uploads only; the content travels inline as a
// string, so binary payloads indicate a client bug.
func (r *Router) handleFile(sess *session.Session, p protocol.FilePayload) {
	kind := mimetype.Detect([]byte(p.Content))
	if !isTextual(kind) {
		sess.Send(protocol.NewError(protocol.CodeServerError,
			"Unsupported file type: "+kind.String()))
		return
	}
	sess.AddDocument(p.Content, p.Filename)
	sess.Send(protocol.ReadyMessage{})
}

func isTextual(kind *mimetype.MIME) bool {
	for k := kind; k != nil; k = k.Parent() {
		if strings.HasPrefix(k.String(), "text/") {
			return true
		}
	}
	switch kind.String() {
	case "application/json", "application/xml", "text/csv":
		return true
	}
	return false
}

// handleMetadata accepts the data either as a JSON object or as a string
// that itself encodes one.
func (r *Router) handleMetadata(sess *session.Session, p protocol.MetadataPayload) {
	var data map[string]any
	switch v := p.Data.(type) {
	case map[string]any:
		data = v
	case string:
		if err := sonic.UnmarshalString(v, &data); err != nil {
			sess.Send(protocol.NewError(protocol.CodeServerError, "Metadata string is not valid JSON"))
			return
		}
	default:
		sess.Send(protocol.NewError(protocol.CodeServerError, "Metadata data must be an object"))
		return
	}

	sess.UpdateMetadata(data, p.Merge)
	sess.Send(protocol.ReadyMessage{})
}
