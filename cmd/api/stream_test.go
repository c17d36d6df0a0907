package main

import (
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	v1 "github.com/PaulBabatuyi/marketChat-gRPC/api/chat/v1"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/middleware"
	"github.com/PaulBabatuyi/marketChat-gRPC/internal/realtime"
)

func TestConnect_ReceivesNewMessage(t *testing.T) {
	s, _ := newTestServer(t)
	conv := createDirect(t, s, "alice", "bob")
	alice, _ := connect(t, s, "alice")

	start := time.Now()
	sent := sendText(t, s, "bob", conv.ID, "is it still available?")

	fr := alice.next(t, realtime.EventNewMessage)
	if elapsed := time.Since(start); elapsed > realtime.DefaultSendTimeout+100*time.Millisecond {
		t.Fatalf("event took %s", elapsed)
	}
	if fr.ConversationID != conv.ID {
		t.Fatalf("expected conversation %s, got %s", conv.ID, fr.ConversationID)
	}
	var got v1.Message
	decodeData(t, fr, &got)
	if got.ID != sent.ID || got.Content != "is it still available?" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestConnect_SenderIsExcluded(t *testing.T) {
	s, _ := newTestServer(t)
	conv := createDirect(t, s, "alice", "bob")
	bob, _ := connect(t, s, "bob")

	sendText(t, s, "bob", conv.ID, "hello")
	bob.none(t)
}

func TestConnect_TypingFanOut(t *testing.T) {
	s, _ := newTestServer(t)
	conv := createDirect(t, s, "alice", "bob")
	alice, _ := connect(t, s, "alice")
	bob, _ := connect(t, s, "bob")

	bob.in <- &v1.ClientFrame{Type: v1.FrameTyping, ConversationID: conv.ID}
	fr := alice.next(t, realtime.EventTyping)
	var td realtime.TypingData
	decodeData(t, fr, &td)
	if td.UserID != "bob" || td.ExpiresAt == nil {
		t.Fatalf("unexpected typing data: %+v", td)
	}

	resp, err := s.GetConversation(asUser("alice"), &v1.GetConversationRequest{ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(resp.Conversation.Typing) != 1 || resp.Conversation.Typing[0].UserID != "bob" {
		t.Fatalf("expected bob typing, got %+v", resp.Conversation.Typing)
	}

	bob.in <- &v1.ClientFrame{Type: v1.FrameTypingStopped, ConversationID: conv.ID}
	alice.next(t, realtime.EventTypingStopped)

	// an explicit stop is always relayed, even with no record left
	bob.in <- &v1.ClientFrame{Type: v1.FrameTypingStopped, ConversationID: conv.ID}
	alice.next(t, realtime.EventTypingStopped)
}

func TestConnect_ReadReceiptFrame(t *testing.T) {
	s, _ := newTestServer(t)
	conv := createDirect(t, s, "alice", "bob")
	m := sendText(t, s, "alice", conv.ID, "price is firm")
	alice, _ := connect(t, s, "alice")
	bob, _ := connect(t, s, "bob")

	bob.in <- &v1.ClientFrame{Type: v1.FrameReadReceipt, ConversationID: conv.ID, MessageID: m.ID}
	fr := alice.next(t, realtime.EventReadReceipt)
	var rr v1.ReadReceiptEvent
	decodeData(t, fr, &rr)
	if rr.UserID != "bob" || rr.MessageID != m.ID {
		t.Fatalf("unexpected receipt: %+v", rr)
	}

	// the same position again does not advance
	bob.in <- &v1.ClientFrame{Type: v1.FrameReadReceipt, ConversationID: conv.ID, MessageID: m.ID}
	alice.none(t)

	bob.in <- &v1.ClientFrame{Type: v1.FrameDelivered, ConversationID: conv.ID, MessageID: m.ID}
	bob.none(t)
}

func TestConnect_BadFramesGetErrorFrames(t *testing.T) {
	m := newCountingServerMetrics()
	s, _ := newTestServer(t, func(d *serverDeps) { d.Metrics = m })
	conv := createDirect(t, s, "alice", "bob")
	alice, done := connect(t, s, "alice")

	cases := []struct {
		frame *v1.ClientFrame
		code  string
	}{
		{&v1.ClientFrame{Malformed: "unexpected end of JSON input"}, "invalid_argument"},
		{&v1.ClientFrame{Type: "dance", ConversationID: conv.ID}, "invalid_argument"},
		{&v1.ClientFrame{Type: v1.FrameTyping}, "invalid_argument"},
		{&v1.ClientFrame{Type: v1.FrameReadReceipt, ConversationID: conv.ID}, "invalid_argument"},
		{&v1.ClientFrame{Type: v1.FrameTyping, ConversationID: "missing"}, "not_found"},
	}
	for _, tc := range cases {
		alice.in <- tc.frame
		fr := alice.next(t, realtime.EventError)
		var ed realtime.ErrorData
		decodeData(t, fr, &ed)
		if ed.Code != tc.code {
			t.Fatalf("frame %+v: expected code %s, got %+v", tc.frame, tc.code, ed)
		}
	}
	if m.rejections("malformed") != 1 || m.rejections("unknown_type") != 1 {
		t.Fatalf("unexpected rejection counts: %v", m.rejected)
	}

	// the stream is still usable
	select {
	case err := <-done:
		t.Fatalf("stream ended: %v", err)
	default:
	}
	alice.in <- &v1.ClientFrame{Type: v1.FrameTyping, ConversationID: conv.ID}
	alice.none(t)
}

func TestConnect_FrameRateLimit(t *testing.T) {
	frames := middleware.NewLimiterStore(1, 2, time.Minute)
	s, _ := newTestServer(t, func(d *serverDeps) { d.Frames = frames })
	conv := createDirect(t, s, "alice", "bob")
	alice, _ := connect(t, s, "alice")

	for i := 0; i < 2; i++ {
		alice.in <- &v1.ClientFrame{Type: v1.FrameTyping, ConversationID: conv.ID}
	}
	alice.in <- &v1.ClientFrame{Type: v1.FrameTyping, ConversationID: conv.ID}

	fr := alice.next(t, realtime.EventError)
	var ed realtime.ErrorData
	decodeData(t, fr, &ed)
	if ed.Code != "resource_exhausted" {
		t.Fatalf("expected resource_exhausted, got %+v", ed)
	}
}

func TestConnect_NewConnectionReplacesOld(t *testing.T) {
	s, _ := newTestServer(t)
	conv := createDirect(t, s, "alice", "bob")
	_, firstDone := connect(t, s, "alice")

	second := newFakeStream("alice")
	t.Cleanup(second.cancel)
	go func() { _ = s.Connect(second) }()

	select {
	case err := <-firstDone:
		if status.Code(err) != codes.Aborted {
			t.Fatalf("expected Aborted, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first stream still running")
	}

	waitFor(t, func() bool { return s.registry.Connected("alice") })
	sendText(t, s, "bob", conv.ID, "hi")
	second.next(t, realtime.EventNewMessage)
}

func TestConnect_ClientCancelEndsCleanly(t *testing.T) {
	s, _ := newTestServer(t)
	alice, done := connect(t, s, "alice")

	alice.cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean end, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not end")
	}
	waitFor(t, func() bool { return !s.registry.Connected("alice") })
}
