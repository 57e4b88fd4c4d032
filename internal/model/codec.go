package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// 记录格式版本：
// 1 - 旧格式：集数以字符串为 key，released 为布尔值，协作者可能重复，没有 pending_collabs
// 2 - 当前格式
const CurrentSchemaVersion = 2

var ErrUnsupportedSchema = errors.New("unsupported record schema version")

// migration 把 version 版本的原始 JSON 升级到 version+1
type migration func(raw []byte) ([]byte, error)

var migrations = map[int]migration{
	1: migrateV1ToV2,
}

// Encode 序列化记录，总是写当前版本
func Encode(rec *CommunityRecord) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("nil community record")
	}
	rec.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(rec)
}

// Decode 反序列化记录，必要时逐版本迁移
func Decode(data []byte) (*CommunityRecord, error) {
	var head struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode record header: %w", err)
	}
	version := head.SchemaVersion
	if version == 0 {
		// 旧数据没有写版本号
		version = 1
	}
	if version > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, version)
	}
	raw := data
	for v := version; v < CurrentSchemaVersion; v++ {
		step, ok := migrations[v]
		if !ok {
			return nil, fmt.Errorf("%w: no migration from %d", ErrUnsupportedSchema, v)
		}
		next, err := step(raw)
		if err != nil {
			return nil, fmt.Errorf("migrate record v%d: %w", v, err)
		}
		raw = next
	}

	var rec CommunityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec.ensureMaps()
	rec.OwnerIDs = NormalizeIDs(rec.OwnerIDs)
	for title, p := range rec.Projects {
		if p == nil {
			delete(rec.Projects, title)
			continue
		}
		p.Title = title
		p.Collaborators = NormalizeIDs(p.Collaborators)
	}
	rec.SchemaVersion = CurrentSchemaVersion
	return &rec, nil
}

type legacyEpisode struct {
	Released  bool            `json:"released"`
	StaffDone map[string]bool `json:"staff_done"`
	AirTime   int64           `json:"air_time"` // unix 秒
}

type legacyProject struct {
	Title         string                   `json:"title"`
	Ref           string                   `json:"ref"`
	RoleID        uint64                   `json:"role_id"`
	Staff         map[string]uint64        `json:"staff"`
	Episodes      map[string]legacyEpisode `json:"episodes"`
	Collaborators []uint64                 `json:"collaborators"`
	LastUpdate    int64                    `json:"last_update"`
}

type legacyCommunity struct {
	ID              uint64                   `json:"id"`
	Owners          []uint64                 `json:"owners"`
	AnnounceChannel uint64                   `json:"announce_channel"`
	Projects        map[string]legacyProject `json:"projects"`
	Aliases         map[string]string        `json:"aliases"`
}

func migrateV1ToV2(raw []byte) ([]byte, error) {
	var old legacyCommunity
	if err := json.Unmarshal(raw, &old); err != nil {
		return nil, err
	}
	rec := NewCommunityRecord(old.ID, 0)
	rec.SchemaVersion = 2
	rec.OwnerIDs = NormalizeIDs(old.Owners)
	rec.AnnounceChannel = old.AnnounceChannel
	for alias, title := range old.Aliases {
		rec.Aliases[alias] = title
	}
	for key, op := range old.Projects {
		title := op.Title
		if title == "" {
			title = key
		}
		p := NewProjectRecord(title, op.Ref, op.RoleID)
		for role, id := range op.Staff {
			if r := NormalizeRole(role); r != "" {
				p.StaffAssignment[r] = id
			}
		}
		for num, oe := range op.Episodes {
			n, err := strconv.Atoi(num)
			if err != nil {
				return nil, fmt.Errorf("project %q: bad episode key %q", title, num)
			}
			var air time.Time
			if oe.AirTime > 0 {
				air = time.Unix(oe.AirTime, 0).UTC()
			}
			ep := NewEpisodeState(air)
			for role, done := range oe.StaffDone {
				if r := NormalizeRole(role); r != "" {
					ep.StaffDone[r] = done
				}
			}
			if oe.Released {
				ep.Status = EpisodeReleased
			}
			p.Episodes[n] = ep
		}
		p.Collaborators = NormalizeIDs(op.Collaborators)
		if op.LastUpdate > 0 {
			p.LastUpdate = time.Unix(op.LastUpdate, 0).UTC()
		}
		rec.Projects[title] = p
	}
	return json.Marshal(rec)
}
