package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"

	v1 "github.com/PaulBabatuyi/marketChat-gRPC/api/chat/v1"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/auth"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/chat"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

// world is an in-memory backing for the fake stores. It keeps only what the
// handlers observe; ordering and visibility follow the Mongo stores.
type world struct {
	mu        sync.Mutex
	seq       int
	now       time.Time
	convs     map[string]*chat.Conversation
	members   map[string][]string // conversation id -> active user ids
	msgs      []*chat.Message
	reads     map[string]string // conversation|user -> last read message id
	reactions map[string]*chat.Reaction
	reports   map[string]*chat.Report
}

func newWorld() *world {
	return &world{
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		convs:     map[string]*chat.Conversation{},
		members:   map[string][]string{},
		reads:     map[string]string{},
		reactions: map[string]*chat.Reaction{},
		reports:   map[string]*chat.Report{},
	}
}

func (w *world) id(prefix string) string {
	w.seq++
	return fmt.Sprintf("%s%d", prefix, w.seq)
}

func (w *world) tick() time.Time {
	w.now = w.now.Add(time.Second)
	return w.now
}

func (w *world) isMember(convID, userID string) bool {
	for _, id := range w.members[convID] {
		if id == userID {
			return true
		}
	}
	return false
}

func (w *world) message(msgID, userID string) (*chat.Message, error) {
	for _, m := range w.msgs {
		if m.ID == msgID && w.isMember(m.ConversationID, userID) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: message %s", chat.ErrNotFound, msgID)
}

func (w *world) refreshPreview(convID string) {
	c := w.convs[convID]
	for i := len(w.msgs) - 1; i >= 0; i-- {
		m := w.msgs[i]
		if m.ConversationID != convID {
			continue
		}
		at := m.CreatedAt
		c.LastMessageAt = &at
		c.LastMessageID = m.ID
		c.LastMessagePreview = chat.Preview(m)
		return
	}
}

type fakeConvs struct{ w *world }

func (f fakeConvs) Create(_ context.Context, nc chat.NewConversation) (*chat.Conversation, bool, error) {
	members, err := nc.Members()
	if err != nil {
		return nil, false, err
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()

	key := chat.DirectKey(nc.Type, members, nc.Listing)
	if key != "" {
		for _, c := range f.w.convs {
			if c.DirectKey == key {
				cp := *c
				return &cp, false, nil
			}
		}
	}
	now := f.w.tick()
	c := &chat.Conversation{
		ID:         f.w.id("c"),
		Type:       nc.Type,
		Title:      nc.Title,
		Listing:    nc.Listing,
		DirectKey:  key,
		CreatedBy:  nc.InitiatorID,
		CreatedAt:  now,
		ActivityAt: now,
	}
	f.w.convs[c.ID] = c
	f.w.members[c.ID] = members
	cp := *c
	return &cp, true, nil
}

func (f fakeConvs) view(convID, userID string) *chat.ConversationView {
	c := f.w.convs[convID]
	v := &chat.ConversationView{
		Conversation: *c,
		Viewer:       chat.Participant{ConversationID: convID, UserID: userID, Active: true},
		Settings:     chat.Settings{ConversationID: convID, UserID: userID},
	}
	for _, id := range f.w.members[convID] {
		v.Participants = append(v.Participants, chat.Participant{ConversationID: convID, UserID: id, Active: true})
	}
	return v
}

func (f fakeConvs) List(_ context.Context, userID string, _ bool) ([]chat.ConversationView, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []chat.ConversationView
	for id := range f.w.convs {
		if f.w.isMember(id, userID) {
			out = append(out, *f.view(id, userID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Conversation.ID < out[j].Conversation.ID })
	return out, nil
}

func (f fakeConvs) Get(_ context.Context, convID, userID string) (*chat.ConversationView, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, ok := f.w.convs[convID]; !ok || !f.w.isMember(convID, userID) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, convID)
	}
	return f.view(convID, userID), nil
}

func (f fakeConvs) ActiveParticipantIDs(_ context.Context, convID string) ([]string, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, ok := f.w.convs[convID]; !ok {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, convID)
	}
	return append([]string(nil), f.w.members[convID]...), nil
}

func (f fakeConvs) UpdateSettings(_ context.Context, convID, userID string, patch chat.SettingsPatch) (*chat.Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if !f.w.isMember(convID, userID) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, convID)
	}
	st := &chat.Settings{ConversationID: convID, UserID: userID, UpdatedAt: f.w.tick()}
	if patch.Muted != nil {
		st.Muted = *patch.Muted
	}
	if patch.Archived != nil {
		st.Archived = *patch.Archived
	}
	if patch.Blocked != nil {
		st.Blocked = *patch.Blocked
	}
	if patch.CustomName != nil {
		st.CustomName = *patch.CustomName
	}
	return st, nil
}

func (f fakeConvs) Leave(_ context.Context, convID, userID string) (*chat.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	c, ok := f.w.convs[convID]
	if !ok || !f.w.isMember(convID, userID) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, convID)
	}
	if c.Type != chat.ConversationGroup {
		return nil, chat.Invalid("conversation_id", "only group conversations can be left")
	}
	var rest []string
	for _, id := range f.w.members[convID] {
		if id != userID {
			rest = append(rest, id)
		}
	}
	f.w.members[convID] = rest
	m := chat.Draft{
		ConversationID: convID,
		SenderID:       userID,
		Payload:        chat.SystemPayload{Content: userID + " left the conversation"},
	}.Build(f.w.id("m"), f.w.tick())
	f.w.msgs = append(f.w.msgs, &m)
	f.w.refreshPreview(convID)
	return &m, nil
}

type fakeMsgs struct{ w *world }

func (f fakeMsgs) Send(_ context.Context, d chat.Draft) (*chat.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	now := f.w.tick()
	if err := chat.ValidateClientPayload(d.Payload, now); err != nil {
		return nil, err
	}
	if _, ok := f.w.convs[d.ConversationID]; !ok || !f.w.isMember(d.ConversationID, d.SenderID) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, d.ConversationID)
	}
	m := d.Build(f.w.id("m"), now)
	f.w.msgs = append(f.w.msgs, &m)
	f.w.refreshPreview(d.ConversationID)
	cp := m
	return &cp, nil
}

func (f fakeMsgs) Edit(_ context.Context, msgID, editorID, content string) (*chat.Message, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	m, err := f.w.message(msgID, editorID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != editorID {
		return nil, fmt.Errorf("%w: not the sender", chat.ErrForbidden)
	}
	if err := m.Edit(content, f.w.tick()); err != nil {
		return nil, err
	}
	f.w.refreshPreview(m.ConversationID)
	cp := *m
	return &cp, nil
}

func (f fakeMsgs) Delete(_ context.Context, msgID, requesterID string) (*chat.Message, bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	m, err := f.w.message(msgID, requesterID)
	if err != nil {
		return nil, false, err
	}
	if m.SenderID != requesterID {
		return nil, false, fmt.Errorf("%w: not the sender", chat.ErrForbidden)
	}
	changed := m.Delete(f.w.tick())
	f.w.refreshPreview(m.ConversationID)
	cp := *m
	return &cp, changed, nil
}

func (f fakeMsgs) List(_ context.Context, convID, requesterID, _ string, limit int) (*chat.MessagePage, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if !f.w.isMember(convID, requesterID) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, convID)
	}
	page := &chat.MessagePage{}
	for _, m := range f.w.msgs {
		if m.ConversationID == convID && len(page.Messages) < limit {
			page.Messages = append(page.Messages, m.Redacted())
		}
	}
	return page, nil
}

func (f fakeMsgs) MarkRead(_ context.Context, convID, userID, msgID string) (*chat.ReadReceipt, bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	m, err := f.w.message(msgID, userID)
	if err != nil || m.ConversationID != convID {
		return nil, false, fmt.Errorf("%w: message %s", chat.ErrNotFound, msgID)
	}
	key := convID + "|" + userID
	rr := &chat.ReadReceipt{ConversationID: convID, UserID: userID, MessageID: msgID, ReadAt: f.w.now}
	if f.w.reads[key] == msgID {
		return rr, false, nil
	}
	f.w.reads[key] = msgID
	return rr, true, nil
}

func (f fakeMsgs) MarkDelivered(_ context.Context, convID, userID, msgID string) (int64, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if !f.w.isMember(convID, userID) {
		return 0, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, convID)
	}
	return 1, nil
}

type fakeReactions struct{ w *world }

func (f fakeReactions) Set(_ context.Context, msgID, userID, symbol string) (*chat.Reaction, bool, error) {
	sym, err := chat.NormalizeSymbol(symbol)
	if err != nil {
		return nil, false, err
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	m, err := f.w.message(msgID, userID)
	if err != nil {
		return nil, false, err
	}
	if m.IsDeleted() {
		return nil, false, chat.Invalid("message_id", "message is deleted")
	}
	key := msgID + "|" + userID
	if r, ok := f.w.reactions[key]; ok {
		if r.Symbol == sym {
			cp := *r
			return &cp, false, nil
		}
		r.Symbol = sym
		r.UpdatedAt = f.w.tick()
		cp := *r
		return &cp, true, nil
	}
	now := f.w.tick()
	r := &chat.Reaction{ID: f.w.id("r"), MessageID: msgID, ConversationID: m.ConversationID,
		UserID: userID, Symbol: sym, CreatedAt: now, UpdatedAt: now}
	f.w.reactions[key] = r
	cp := *r
	return &cp, true, nil
}

func (f fakeReactions) Remove(_ context.Context, msgID, userID string) (string, bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	m, err := f.w.message(msgID, userID)
	if err != nil {
		return "", false, err
	}
	key := msgID + "|" + userID
	if _, ok := f.w.reactions[key]; !ok {
		return m.ConversationID, false, nil
	}
	delete(f.w.reactions, key)
	return m.ConversationID, true, nil
}

func (f fakeReactions) List(_ context.Context, msgID, userID string) ([]chat.Reaction, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, err := f.w.message(msgID, userID); err != nil {
		return nil, err
	}
	var out []chat.Reaction
	for _, r := range f.w.reactions {
		if r.MessageID == msgID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeReports struct{ w *world }

func (f fakeReports) File(_ context.Context, nr chat.NewReport) (*chat.Report, error) {
	if err := nr.Validate(); err != nil {
		return nil, err
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	m, err := f.w.message(nr.MessageID, nr.ReporterID)
	if err != nil {
		return nil, err
	}
	now := f.w.tick()
	r := &chat.Report{ID: f.w.id("rp"), MessageID: m.ID, ConversationID: m.ConversationID,
		ReporterID: nr.ReporterID, Reason: nr.Reason, Description: nr.Description,
		Status: chat.ReportPending, CreatedAt: now, UpdatedAt: now, History: []chat.ReportTransition{}}
	f.w.reports[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f fakeReports) Transition(_ context.Context, reportID, actorID string, to chat.ReportStatus, note string) (*chat.Report, error) {
	if !to.Valid() {
		return nil, chat.Invalid("status", "unknown status "+string(to))
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	r, ok := f.w.reports[reportID]
	if !ok {
		return nil, fmt.Errorf("%w: report %s", chat.ErrNotFound, reportID)
	}
	if !r.Status.CanTransition(to) {
		return nil, chat.Invalid("status", fmt.Sprintf("cannot move report from %s to %s", r.Status, to))
	}
	now := f.w.tick()
	r.History = append(r.History, chat.ReportTransition{From: r.Status, To: to, By: actorID, Note: note, At: now})
	r.Status = to
	r.UpdatedAt = now
	cp := *r
	return &cp, nil
}

func (f fakeReports) List(_ context.Context, status chat.ReportStatus, limit int) ([]chat.Report, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []chat.Report
	for _, r := range f.w.reports {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// countingServerMetrics records handler metrics.
type countingServerMetrics struct {
	mu       sync.Mutex
	written  map[string]int
	rejected map[string]int
}

func newCountingServerMetrics() *countingServerMetrics {
	return &countingServerMetrics{written: map[string]int{}, rejected: map[string]int{}}
}

func (m *countingServerMetrics) MessageWritten(op, typ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[op+"/"+typ]++
}

func (m *countingServerMetrics) FrameRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason]++
}

func (m *countingServerMetrics) rejections(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[reason]
}

// newTestServer wires a Server over a fresh world.
func newTestServer(t *testing.T, opts ...func(*serverDeps)) (*Server, *world) {
	t.Helper()
	w := newWorld()
	d := serverDeps{
		Convs:     fakeConvs{w},
		Msgs:      fakeMsgs{w},
		Reactions: fakeReactions{w},
		Reports:   fakeReports{w},
	}
	for _, o := range opts {
		o(&d)
	}
	s := newServer(d)
	t.Cleanup(func() {
		s.registry.CloseAll()
		s.frames.Stop()
	})
	return s, w
}

func asUser(userID string) context.Context {
	return context.WithValue(context.Background(), authContextKey{}, &auth.Claims{UserID: userID})
}

func asAdmin(userID string) context.Context {
	return context.WithValue(context.Background(), authContextKey{}, &auth.Claims{UserID: userID, Role: auth.RoleAdmin})
}

// fakeStream is a Connect stream driven by channels.
type fakeStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	in     chan *v1.ClientFrame
	out    chan *v1.ServerFrame
}

func newFakeStream(userID string) *fakeStream {
	ctx, cancel := context.WithCancel(asUser(userID))
	return &fakeStream{ctx: ctx, cancel: cancel, in: make(chan *v1.ClientFrame), out: make(chan *v1.ServerFrame, 64)}
}

func (f *fakeStream) Recv() (*v1.ClientFrame, error) {
	select {
	case fr := <-f.in:
		return fr, nil
	case <-f.ctx.Done():
		return nil, f.ctx.Err()
	}
}

func (f *fakeStream) Send(fr *v1.ServerFrame) error {
	select {
	case f.out <- fr:
		return nil
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
}

func (f *fakeStream) Context() context.Context { return f.ctx }

// The following methods are part of grpc.ServerStream; keep signatures exact so
// fakeStream implements grpc.BidiStreamingServer.
func (f *fakeStream) SetHeader(md metadata.MD) error  { return nil }
func (f *fakeStream) SendHeader(md metadata.MD) error { return nil }
func (f *fakeStream) SetTrailer(md metadata.MD)       {}

func (f *fakeStream) RecvMsg(m any) error {
	fr, ok := m.(*v1.ClientFrame)
	if !ok {
		return errors.New("RecvMsg: unexpected type")
	}
	r, err := f.Recv()
	if err != nil {
		return err
	}
	*fr = *r
	return nil
}

func (f *fakeStream) SendMsg(m any) error {
	fr, ok := m.(*v1.ServerFrame)
	if !ok {
		return fmt.Errorf("SendMsg: unexpected type: %T", m)
	}
	return f.Send(fr)
}

// connect runs Connect for userID until the test ends and waits until the
// stream is registered.
func connect(t *testing.T, s *Server, userID string) (*fakeStream, <-chan error) {
	t.Helper()
	st := newFakeStream(userID)
	done := make(chan error, 1)
	go func() { done <- s.Connect(st) }()
	t.Cleanup(st.cancel)
	waitFor(t, func() bool { return s.registry.Connected(userID) })
	return st, done
}

// next returns the next frame of type typ, skipping others.
func (f *fakeStream) next(t *testing.T, typ realtime.EventType) *v1.ServerFrame {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case fr := <-f.out:
			if fr.Type == string(typ) {
				return fr
			}
		case <-deadline:
			t.Fatalf("no %s frame within 1s", typ)
			return nil
		}
	}
}

// none asserts that no frame arrives for a short while.
func (f *fakeStream) none(t *testing.T) {
	t.Helper()
	select {
	case fr := <-f.out:
		t.Fatalf("unexpected frame %s: %s", fr.Type, fr.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
