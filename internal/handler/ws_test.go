package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	models "collabedit/internal/domain/models/collab"
	collabSvc "collabedit/internal/domain/services/collab"
	"collabedit/internal/realtime"
)

func TestWebSocketRequiresToken(t *testing.T) {
	s := newTestServer(t)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without a token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %v, want 401", resp)
	}
}

func TestWebSocketEditRoundTrip(t *testing.T) {
	s := newTestServer(t)
	project, file := setupProject(t, s)

	owner := s.dial(t, "owner")
	editor := s.dial(t, "editor")

	for _, ws := range []*websocket.Conn{owner, editor} {
		emit(t, ws, realtime.EventJoinProject, realtime.ProjectPayload{ProjectID: project.ID})
		var joined realtime.ProjectJoinedPayload
		next(t, ws, realtime.EventProjectJoined, &joined)
		if joined.ProjectID != project.ID {
			t.Fatalf("joined %+v", joined)
		}

		emit(t, ws, realtime.EventJoinFile, realtime.FilePayload{FileID: file.ID})
		var update realtime.FileUpdatePayload
		next(t, ws, realtime.EventFileUpdate, &update)
		if update.NewContent != "print(1)" {
			t.Fatalf("initial content = %q", update.NewContent)
		}
	}

	emit(t, editor, realtime.EventEditFile, realtime.EditFilePayload{FileID: file.ID, Content: "print(2)"})

	var edit realtime.RemoteEditPayload
	next(t, owner, realtime.EventRemoteEdit, &edit)
	if edit.FileID != file.ID || edit.Content != "print(2)" {
		t.Fatalf("remote edit = %+v", edit)
	}

	var got models.File
	s.mustDo(t, "viewer", http.MethodGet, "/api/projects/"+project.ID+"/files/"+file.ID, nil, http.StatusOK, &got)
	if got.Contents != "print(2)" {
		t.Errorf("REST contents = %q, want the live edit", got.Contents)
	}

	// structural changes reach the project room
	var created models.File
	s.mustDo(t, "owner", http.MethodPost, "/api/projects/"+project.ID+"/files",
		collabSvc.CreateFileRequest{Name: "b.js"}, http.StatusCreated, &created)
	for _, ws := range []*websocket.Conn{owner, editor} {
		var payload realtime.FileCreatedPayload
		next(t, ws, realtime.EventFileCreated, &payload)
		if payload.File == nil || payload.File.ID != created.ID {
			t.Errorf("fileCreated payload = %+v", payload)
		}
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	s := newTestServer(t)
	project, file := setupProject(t, s)

	viewer := s.dial(t, "viewer")

	if err := viewer.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	next(t, viewer, realtime.EventFileError, nil)

	emit(t, viewer, realtime.EventJoinProject, realtime.ProjectPayload{ProjectID: project.ID})
	next(t, viewer, realtime.EventProjectJoined, nil)

	emit(t, viewer, realtime.EventEditFile, realtime.EditFilePayload{FileID: file.ID, Content: "nope"})
	var fail realtime.FileErrorPayload
	next(t, viewer, realtime.EventFileError, &fail)
	if fail.Message == "" {
		t.Error("fileError should carry a message")
	}
}
