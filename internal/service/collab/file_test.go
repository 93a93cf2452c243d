package collab

import (
	"context"
	"errors"
	"testing"

	"collabedit/internal/domain"
	models "collabedit/internal/domain/models/collab"
	collabSvc "collabedit/internal/domain/services/collab"
)

func TestCreateFile(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, map[string]string{"main.py": ""})
	ctx := context.Background()

	tests := []struct {
		name     string
		actor    string
		req      collabSvc.CreateFileRequest
		wantType models.FileType
		wantErr  error
	}{
		{"type from extension", env.editor.ID, collabSvc.CreateFileRequest{Name: "App.java"}, models.FileTypeJava, nil},
		{"explicit type", env.owner.ID, collabSvc.CreateFileRequest{Name: "script", Type: models.FileTypePython}, models.FileTypePython, nil},
		{"unknown extension", env.owner.ID, collabSvc.CreateFileRequest{Name: "notes.txt"}, models.FileTypeOther, nil},
		{"duplicate name", env.owner.ID, collabSvc.CreateFileRequest{Name: "main.py"}, "", domain.ErrConflict},
		{"viewer", env.viewer.ID, collabSvc.CreateFileRequest{Name: "x.js"}, "", domain.ErrForbidden},
		{"outsider", env.outsider.ID, collabSvc.CreateFileRequest{Name: "x.js"}, "", domain.ErrForbidden},
		{"invalid type", env.owner.ID, collabSvc.CreateFileRequest{Name: "x", Type: "RUST"}, "", domain.ErrValidation},
		{"path separator", env.owner.ID, collabSvc.CreateFileRequest{Name: "a/b.py"}, "", domain.ErrValidation},
		{"missing name", env.owner.ID, collabSvc.CreateFileRequest{}, "", domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := env.fileSvc.CreateFile(ctx, project.ID, tt.actor, &tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if file.Type != tt.wantType {
				t.Errorf("type = %q, want %q", file.Type, tt.wantType)
			}
		})
	}

	state, _ := env.store.States().GetByID(ctx, env.reload(t, project.ID).CurrentStateID)
	if len(state.FileIDs) != 4 {
		t.Errorf("state has %d files, want 4", len(state.FileIDs))
	}
	if len(env.notifier.created) != 3 {
		t.Errorf("notifier saw %d creates, want 3", len(env.notifier.created))
	}
}

func TestDeleteFile_LastFileRejected(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, map[string]string{"a.py": "a", "b.py": "b"})
	ctx := context.Background()
	a := env.fileIDByName(t, project.CurrentStateID, "a.py")
	b := env.fileIDByName(t, project.CurrentStateID, "b.py")

	if err := env.fileSvc.DeleteFile(ctx, project.ID, a, env.viewer.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("viewer delete: expected ErrForbidden, got %v", err)
	}
	if err := env.fileSvc.DeleteFile(ctx, project.ID, a, env.editor.ID); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}

	err := env.fileSvc.DeleteFile(ctx, project.ID, b, env.owner.ID)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("deleting the last file: expected ErrValidation, got %v", err)
	}

	state, _ := env.store.States().GetByID(ctx, project.CurrentStateID)
	if len(state.FileIDs) != 1 || state.FileIDs[0] != b {
		t.Errorf("state files = %v, want [%s]", state.FileIDs, b)
	}
	if _, err := env.store.Files().GetByID(ctx, b); err != nil {
		t.Errorf("last file was removed from the store: %v", err)
	}
	if len(env.notifier.deleted) != 1 || env.notifier.deleted[0] != a {
		t.Errorf("notifier deletes = %v, want [%s]", env.notifier.deleted, a)
	}
}

func TestDeleteFile_NotInCurrentState(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, map[string]string{"a.py": "a", "b.py": "b"})
	ctx := context.Background()
	old := env.fileIDByName(t, project.CurrentStateID, "a.py")

	if _, err := env.snapshots.CreateBackup(ctx, project.ID, env.owner.ID); err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}

	if err := env.fileSvc.DeleteFile(ctx, project.ID, old, env.owner.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a saved state's file, got %v", err)
	}
}

func TestGetFile_PrefersLiveContents(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, map[string]string{"main.py": "stored"})
	ctx := context.Background()
	id := env.fileIDByName(t, project.CurrentStateID, "main.py")

	env.live.set(id, "live")

	file, err := env.fileSvc.GetFile(ctx, project.ID, id, env.viewer.ID)
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if file.Contents != "live" {
		t.Errorf("contents = %q, want live", file.Contents)
	}

	files, err := env.fileSvc.ListFiles(ctx, project.ID, env.viewer.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].Contents != "live" {
		t.Errorf("ListFiles() = %+v", files)
	}
}

func TestRunFile_ExecutesLiveContents(t *testing.T) {
	env := newTestEnv(t)
	project := env.newProject(t, map[string]string{"main.py": "print(1)"})
	ctx := context.Background()
	id := env.fileIDByName(t, project.CurrentStateID, "main.py")
	env.live.set(id, "print(2)")

	result, err := env.fileSvc.RunFile(ctx, project.ID, id, env.viewer.ID)
	if err != nil {
		t.Fatalf("RunFile() error = %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if env.sandbox.lastName != "main.py" || env.sandbox.lastCode != "print(2)" {
		t.Errorf("sandbox ran %q with %q", env.sandbox.lastName, env.sandbox.lastCode)
	}

	if _, err := env.fileSvc.RunFile(ctx, project.ID, id, env.outsider.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("outsider run: expected ErrForbidden, got %v", err)
	}
}
