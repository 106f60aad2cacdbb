package service

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestExportLedger(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	roleInv := env.newRoleInvitation(t, "audited@example.com")
	if _, err := env.roleSvc.AcceptInvitation(ctx, roleInv.Token, nil); err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	jobInv := env.newJobInvitation(t, env.worker.ID, 11, 10)
	if _, err := env.jobSvc.AcceptJobInvitation(ctx, jobInv.Token); err != nil {
		t.Fatalf("AcceptJobInvitation() error = %v", err)
	}

	var buf bytes.Buffer
	export, err := NewExportService(env.db).Export(ctx, &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if len(export.Grants) != 2 {
		t.Errorf("grants = %d, want 2", len(export.Grants))
	}
	if len(export.Invitations) != 1 || export.Invitations[0].RedeemedBy == nil {
		t.Errorf("invitations = %+v", export.Invitations)
	}
	if len(export.JobInvitations) != 1 || !reflect.DeepEqual(export.JobInvitations[0].ShiftIDs, []int64{11, 10}) {
		t.Errorf("job invitations = %+v", export.JobInvitations)
	}
	if len(export.Assignments) != 2 {
		t.Errorf("assignments = %d, want 2", len(export.Assignments))
	}

	if strings.Contains(buf.String(), roleInv.Token) || strings.Contains(buf.String(), jobInv.Token) {
		t.Error("export must not contain invitation tokens")
	}

	var decoded LedgerExport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.Version != "1.0" || decoded.DatabaseType != "sqlite3" {
		t.Errorf("header = %q/%q", decoded.Version, decoded.DatabaseType)
	}
}
