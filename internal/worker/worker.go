// Package worker provides a NATS worker that installs, deletes and lists voice packages on request.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-installer/internal/core"
	"github.com/book-expert/voice-installer/internal/installer"
	"github.com/book-expert/voice-installer/internal/voices"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 5 * time.Minute

var (
	// ErrObjectKeyEmpty indicates an install request without an object key.
	ErrObjectKeyEmpty = errors.New("object key cannot be empty")
	// ErrLanguageEmpty indicates a delete request without a language.
	ErrLanguageEmpty = errors.New("language cannot be empty")
	// ErrSubjectEmpty indicates a worker configured without one of its subjects.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
)

// Subjects names the request subjects the worker serves.
type Subjects struct {
	Install string
	Delete  string
	List    string
}

// NatsWorker serves install, delete and list requests on NATS subjects.
type NatsWorker struct {
	natsConnection *nats.Conn
	subjects       Subjects
	store          core.ObjectStore
	service        *voices.Service
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subjects Subjects,
	store core.ObjectStore,
	service *voices.Service,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subjects.Install == "" || subjects.Delete == "" || subjects.List == "" {
		return nil, fmt.Errorf("%w: install=%q delete=%q list=%q",
			ErrSubjectEmpty, subjects.Install, subjects.Delete, subjects.List)
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subjects:       subjects,
		store:          store,
		service:        service,
		log:            log,
	}, nil
}

// Run subscribes to the request subjects and serves them until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	handlers := map[string]nats.MsgHandler{
		w.subjects.Install: w.handleInstall,
		w.subjects.Delete:  w.handleDelete,
		w.subjects.List:    w.handleList,
	}

	subs := make([]*nats.Subscription, 0, len(handlers))

	for subject, handler := range handlers {
		sub, err := w.natsConnection.Subscribe(subject, handler)
		if err != nil {
			_ = drainAll(subs)

			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}

		subs = append(subs, sub)
	}

	w.log.System("Voice installer worker listening on %s, %s and %s",
		w.subjects.Install, w.subjects.Delete, w.subjects.List)

	<-ctx.Done()

	drainErr := drainAll(subs)
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscriptions: %w", drainErr)
	}

	return nil
}

func drainAll(subs []*nats.Subscription) error {
	var errs []error

	for _, sub := range subs {
		err := sub.Drain()
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (w *NatsWorker) handleInstall(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var request InstallRequest

	reply := InstallReply{}

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		w.log.Error("Failed to unmarshal install request: %v", err)
		reply.Header = replyHeader(events.EventHeader{})
		reply.Error = fmt.Sprintf("failed to unmarshal install request: %v", err)
		w.respond(msg, reply)

		return
	}

	reply.Header = replyHeader(request.Header)

	outcome, err := w.install(ctx, request)
	if err != nil {
		w.log.Error("Failed to install package '%s' for workflow %s: %v",
			request.ObjectKey, request.Header.WorkflowID, err)
		reply.Error = err.Error()
		w.respond(msg, reply)

		return
	}

	reply.Result = &outcome.Result
	reply.Record = &outcome.Record
	reply.Added = outcome.Added
	w.respond(msg, reply)
}

// install downloads the package object, installs it and removes the object.
func (w *NatsWorker) install(ctx context.Context, request InstallRequest) (voices.InstallOutcome, error) {
	if request.ObjectKey == "" {
		return voices.InstallOutcome{}, ErrObjectKeyEmpty
	}

	data, err := w.store.Download(ctx, request.ObjectKey)
	if err != nil {
		return voices.InstallOutcome{}, fmt.Errorf("failed to download package '%s': %w", request.ObjectKey, err)
	}

	name := request.FileName
	if name == "" {
		name = request.ObjectKey
	}

	outcome, err := w.service.Install(ctx, installer.StreamSource{Name: name, Reader: bytes.NewReader(data)})
	if err != nil {
		return voices.InstallOutcome{}, err
	}

	removeErr := w.store.Remove(ctx, request.ObjectKey)
	if removeErr != nil {
		w.log.Warn("Installed package '%s' but could not remove it from the bucket: %v", request.ObjectKey, removeErr)
	}

	return outcome, nil
}

func (w *NatsWorker) handleDelete(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var request DeleteRequest

	err := json.Unmarshal(msg.Data, &request)
	if err != nil {
		w.log.Error("Failed to unmarshal delete request: %v", err)
		w.respond(msg, DeleteReply{
			Header: replyHeader(events.EventHeader{}),
			Error:  fmt.Sprintf("failed to unmarshal delete request: %v", err),
		})

		return
	}

	reply := DeleteReply{Header: replyHeader(request.Header), Language: request.Language}

	if request.Language == "" {
		reply.Error = ErrLanguageEmpty.Error()
		w.respond(msg, reply)

		return
	}

	err = w.service.Delete(ctx, request.Language)
	if err != nil {
		w.log.Error("Failed to delete voice %s for workflow %s: %v", request.Language, request.Header.WorkflowID, err)
		reply.Error = err.Error()
	}

	w.respond(msg, reply)
}

func (w *NatsWorker) handleList(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	var request ListRequest

	if len(msg.Data) > 0 {
		err := json.Unmarshal(msg.Data, &request)
		if err != nil {
			w.log.Warn("Ignoring unreadable list request payload: %v", err)
		}
	}

	reply := ListReply{Header: replyHeader(request.Header)}

	installed, err := w.service.Installed(ctx)
	if err != nil {
		w.log.Error("Failed to list voices: %v", err)
		reply.Error = err.Error()
	} else {
		reply.Voices = installed
	}

	w.respond(msg, reply)
}

// replyHeader keeps the workflow identity of the request and stamps a new event.
func replyHeader(request events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: request.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     request.UserID,
		TenantID:   request.TenantID,
	}
}

// respond marshals reply and answers msg. Messages without a reply subject are dropped.
func (w *NatsWorker) respond(msg *nats.Msg, reply any) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply on %s: %v", msg.Reply, err)
	}
}
