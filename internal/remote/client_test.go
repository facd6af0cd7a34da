package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token")
}

func TestChatsFirstPage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("scope"); got != "inbox" {
			t.Errorf("scope = %q, want inbox", got)
		}
		if r.URL.Query().Has("cursor") {
			t.Error("first page should not send a cursor")
		}
		_, _ = w.Write([]byte(`{"code":1,"chats":[{"groupId":"g1","title":"Alice","unreadCounter":2,"lastMessageTime":1000}],"nextCursor":"p2"}`))
	})

	page, err := c.Chats(context.Background(), Inbox(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Chats) != 1 || page.Chats[0].GroupID != "g1" {
		t.Errorf("chats = %+v, want one chat g1", page.Chats)
	}
	if page.NextCursor != "p2" {
		t.Errorf("nextCursor = %q, want p2", page.NextCursor)
	}
}

func TestFolderScopeQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("folderId"); got != "7" {
			t.Errorf("folderId = %q, want 7", got)
		}
		_, _ = w.Write([]byte(`{"code":1,"chats":[]}`))
	})
	if _, err := c.Chats(context.Background(), Folder(7), ""); err != nil {
		t.Fatal(err)
	}
}

func TestBlockedChatError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":20,"error":"chat is blocked"}`))
	})

	_, err := c.Messages(context.Background(), ChatRef{GroupID: "g1"}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsBlockedChat(err) {
		t.Errorf("IsBlockedChat(%v) = false, want true", err)
	}
}

func TestAPIErrorCode(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":5,"error":"nope"}`))
	})

	_, err := c.Folders(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Code != 5 || apiErr.Message != "nope" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if IsBlockedChat(err) {
		t.Error("IsBlockedChat = true for a non-blocked code")
	}
}

func TestBroadcastRefQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("dbId") != "12" || q.Get("broadcastId") != "34" {
			t.Errorf("query = %v, want dbId=12 broadcastId=34", q)
		}
		if q.Has("groupId") {
			t.Error("broadcast ref should not send groupId")
		}
		_, _ = w.Write([]byte(`{"code":1,"messages":[],"hasMore":false}`))
	})

	ref := ChatRef{DBID: 12, BroadcastID: 34, Broadcast: true}
	if _, err := c.Messages(context.Background(), ref, ""); err != nil {
		t.Fatal(err)
	}
}

func TestUpload(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		_, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatal(err)
		}
		if hdr.Filename != "photo.jpg" {
			t.Errorf("filename = %q, want photo.jpg", hdr.Filename)
		}
		_, _ = w.Write([]byte(`{"code":1,"id":"media-9"}`))
	})

	id, err := c.Upload(context.Background(), "photo.jpg", strings.NewReader("jpegdata"))
	if err != nil {
		t.Fatal(err)
	}
	if id != "media-9" {
		t.Errorf("media id = %q, want media-9", id)
	}
}

func TestTranslateUploadError(t *testing.T) {
	known := &APIError{Code: 5, Message: "File too large (max 10MB)"}
	if got := TranslateUploadError(known).Error(); got != "The file is too large to send." {
		t.Errorf("translated = %q", got)
	}

	unknown := &APIError{Code: 5, Message: "mystery"}
	if got := TranslateUploadError(unknown).Error(); !strings.HasPrefix(got, "upload failed:") {
		t.Errorf("generic = %q", got)
	}
}
