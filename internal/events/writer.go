package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"missiondesk/internal/db"
)

const (
	MissionCreated     = "mission.created"
	MissionUpdated     = "mission.updated"
	MissionPurged      = "mission.purged"
	ReportSubmitted    = "mission.report.submitted"
	DelegationProposed = "mission.delegation.proposed"
	DelegationAccepted = "mission.delegation.accepted"
	DelegationRejected = "mission.delegation.rejected"
	DelegationCleared  = "mission.delegation.cleared"
	UserCreated        = "user.created"
	UserUpdated        = "user.updated"
	UserDeleted        = "user.deleted"
)

const (
	EntityMission = "mission"
	EntityUser    = "user"
)

type Writer struct {
	DB  *db.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, w.DB.Rebind(`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`),
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
