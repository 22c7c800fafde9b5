// Package memory is an in-process implementation of every store interface.
// It backs tests and local development when no database DSN is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bastionrp.ru/internal/audit"
	"bastionrp.ru/internal/faction"
	"bastionrp.ru/internal/forum"
	"bastionrp.ru/internal/identity"
	"bastionrp.ru/internal/ids"
	"bastionrp.ru/internal/moderation"
	"bastionrp.ru/internal/privilege"
	"bastionrp.ru/internal/roles"
	"bastionrp.ru/internal/sanction"
)

// Store holds all state behind a single mutex. One Store value satisfies the
// identity, sanction, privilege, roles, audit, faction, forum and moderation
// store interfaces at once.
type Store struct {
	mu sync.RWMutex

	users       map[string]*identity.User
	sanctions   []*sanction.Sanction
	admins      map[string]*privilege.AdminRecord // keyed by user id
	activeCode  string
	roles       map[string]*roles.CustomRole
	audits      []audit.Entry
	factions    map[string]*faction.Faction
	memberships []faction.Membership
	posts       map[string]*forum.Post
	comments    []forum.Comment
}

func New() *Store {
	return &Store{
		users:    map[string]*identity.User{},
		admins:   map[string]*privilege.AdminRecord{},
		roles:    map[string]*roles.CustomRole{},
		factions: map[string]*faction.Faction{},
		posts:    map[string]*forum.Post{},
	}
}

// --- identity.Store ---

func (s *Store) Create(_ context.Context, u *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return identity.ErrConflict
		}
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) Find(_ context.Context, id string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, identity.ErrNotFound
}

func (s *Store) FindByUsername(_ context.Context, username string) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (s *Store) UpsertDiscord(_ context.Context, profile identity.DiscordProfile) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, u := range s.users {
		if u.DiscordID == profile.ID {
			u.Username = profile.Username
			u.DiscordDiscriminator = profile.Discriminator
			if profile.Avatar != "" {
				u.AvatarURL = profile.Avatar
			}
			u.UpdatedAt = now
			u.LastLoginAt = now
			cp := *u
			return &cp, nil
		}
	}
	u := &identity.User{
		ID:                   ids.New(),
		Username:             profile.Username,
		DiscordID:            profile.ID,
		DiscordDiscriminator: profile.Discriminator,
		AvatarURL:            profile.Avatar,
		CreatedAt:            now,
		UpdatedAt:            now,
		LastLoginAt:          now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *Store) TouchLogin(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.LastLoginAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, userID string, upd identity.ProfileUpdate) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, identity.ErrNotFound
	}
	if upd.Nickname != nil {
		u.Nickname = *upd.Nickname
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.StatusText != nil {
		u.StatusText = *upd.StatusText
	}
	if upd.DiscordLink != nil {
		u.DiscordLink = *upd.DiscordLink
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (s *Store) Search(_ context.Context, query string, limit int) ([]identity.Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query = strings.ToLower(strings.TrimSpace(query))
	now := time.Now().UTC()

	var all []*identity.User
	for _, u := range s.users {
		if query != "" &&
			!strings.Contains(strings.ToLower(u.Username), query) &&
			!strings.Contains(strings.ToLower(u.Nickname), query) {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	out := make([]identity.Overview, 0, len(all))
	for _, u := range all {
		ov := identity.Overview{
			ID:         u.ID,
			Username:   u.Username,
			DiscordID:  u.DiscordID,
			Nickname:   u.Nickname,
			AvatarURL:  u.AvatarURL,
			StatusText: u.StatusText,
			Banned:     s.sanctionActiveLocked(u.ID, sanction.KindBan, now),
			Muted:      s.sanctionActiveLocked(u.ID, sanction.KindMute, now),
		}
		if rec, ok := s.admins[u.ID]; ok && rec.Active {
			ov.AdminRank = rec.Rank
		}
		out = append(out, ov)
	}
	return out, nil
}

func (s *Store) sanctionActiveLocked(userID string, kind sanction.Kind, now time.Time) bool {
	for _, row := range s.sanctions {
		if row.UserID == userID && row.Kind == kind && row.ActiveAt(now) {
			return true
		}
	}
	return false
}

// --- sanction.Store ---

func (s *Store) Insert(_ context.Context, row *sanction.Sanction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.sanctions = append(s.sanctions, &cp)
	return nil
}

func (s *Store) ActiveRows(_ context.Context, userID string, kind sanction.Kind) ([]sanction.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []sanction.Sanction
	for _, row := range s.sanctions {
		if row.UserID == userID && row.Kind == kind && row.Active {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *Store) DeactivateAll(_ context.Context, userID string, kind sanction.Kind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.sanctions {
		if row.UserID == userID && row.Kind == kind && row.Active {
			row.Active = false
			count++
		}
	}
	return count, nil
}

func (s *Store) History(_ context.Context, userID string) ([]sanction.Sanction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []sanction.Sanction
	for i := len(s.sanctions) - 1; i >= 0; i-- {
		if s.sanctions[i].UserID == userID {
			out = append(out, *s.sanctions[i])
		}
	}
	return out, nil
}

// --- privilege.AdminStore ---

func (s *Store) ActiveAdmin(_ context.Context, userID string) (*privilege.AdminRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.admins[userID]; ok && rec.Active {
		cp := *rec
		return &cp, nil
	}
	return nil, privilege.ErrNotFound
}

func (s *Store) Upsert(_ context.Context, rec *privilege.AdminRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.admins[rec.UserID]; ok {
		prev.Rank = rec.Rank
		prev.RoleID = rec.RoleID
		prev.AppointedBy = rec.AppointedBy
		prev.AppointedAt = rec.AppointedAt
		prev.Active = true
		rec.ID = prev.ID
		return nil
	}
	cp := *rec
	s.admins[rec.UserID] = &cp
	return nil
}

func (s *Store) Deactivate(_ context.Context, adminID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.admins {
		if rec.ID == adminID {
			rec.Active = false
			return nil
		}
	}
	return privilege.ErrNotFound
}

func (s *Store) Roster(_ context.Context) ([]privilege.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []privilege.RosterEntry
	for _, rec := range s.admins {
		if !rec.Active {
			continue
		}
		entry := privilege.RosterEntry{AdminRecord: *rec}
		if u, ok := s.users[rec.UserID]; ok {
			entry.Username = u.Username
			entry.Nickname = u.Nickname
			entry.AvatarURL = u.AvatarURL
		}
		if rec.RoleID != "" {
			if role, ok := s.roles[rec.RoleID]; ok && role.Active {
				entry.Role = &privilege.RoleView{Name: role.Name, Color: role.Color, Permissions: role.Permissions}
			}
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointedAt.After(out[j].AppointedAt) })
	return out, nil
}

// --- privilege.CodeStore ---

func (s *Store) Rotate(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeCode = code
	return nil
}

func (s *Store) ActiveCode(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeCode == "" {
		return "", privilege.ErrNotFound
	}
	return s.activeCode, nil
}

func (s *Store) VerifyCode(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeCode != "" && s.activeCode == code, nil
}

// --- roles.Store ---

// Roles returns the store's roles.Store facade.
func (s *Store) Roles() roles.Store { return s.rolesView() }

func (s *Store) rolesView() *rolesStore { return &rolesStore{s: s} }

// rolesStore adapts Store to roles.Store; method names collide with the
// identity facade otherwise.
type rolesStore struct {
	s *Store
}

func (r *rolesStore) Create(_ context.Context, role *roles.CustomRole) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if strings.EqualFold(existing.Name, role.Name) && existing.Active {
			return roles.ErrConflict
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	cp := *role
	r.s.roles[role.ID] = &cp
	return nil
}

func (r *rolesStore) Get(_ context.Context, id string) (*roles.CustomRole, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if role, ok := r.s.roles[id]; ok {
		cp := *role
		return &cp, nil
	}
	return nil, roles.ErrNotFound
}

func (r *rolesStore) List(_ context.Context) ([]roles.CustomRole, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]roles.CustomRole, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *rolesStore) Update(_ context.Context, id string, upd roles.Update) (*roles.CustomRole, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, roles.ErrNotFound
	}
	if upd.Name != nil {
		role.Name = *upd.Name
	}
	if upd.Color != nil {
		role.Color = *upd.Color
	}
	if upd.Icon != nil {
		role.Icon = *upd.Icon
	}
	if upd.Permissions != nil {
		role.Permissions = upd.Permissions
	}
	if upd.AdminRole != nil {
		role.AdminRole = *upd.AdminRole
	}
	if upd.Active != nil {
		role.Active = *upd.Active
	}
	role.UpdatedAt = time.Now().UTC()
	cp := *role
	return &cp, nil
}

// --- audit.Store ---

func (s *Store) Append(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *e)
	return nil
}

func (s *Store) Recent(_ context.Context, limit int) ([]audit.Resolved, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = audit.ClampLimit(limit)
	out := make([]audit.Resolved, 0, limit)
	for i := len(s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		resolved := audit.Resolved{Entry: s.audits[i]}
		if u, ok := s.users[resolved.ActorID]; ok {
			resolved.ActorUsername = u.Username
		}
		if u, ok := s.users[resolved.TargetID]; ok {
			resolved.TargetUsername = u.Username
		}
		out = append(out, resolved)
	}
	return out, nil
}

// --- faction.Store ---

func (s *Store) CreateFaction(_ context.Context, f *faction.Faction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.factions {
		if strings.EqualFold(existing.Name, f.Name) {
			return faction.ErrConflict
		}
	}
	if f.ID == "" {
		f.ID = ids.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	cp := *f
	s.factions[f.ID] = &cp
	return nil
}

func (s *Store) GetFaction(_ context.Context, id string) (*faction.Faction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.factions[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, faction.ErrNotFound
}

func (s *Store) ListFactions(_ context.Context) ([]faction.Faction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]faction.Faction, 0, len(s.factions))
	for _, f := range s.factions {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Assign(_ context.Context, m *faction.Membership) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.memberships {
		if existing.UserID == m.UserID && existing.FactionID == m.FactionID {
			return false, nil
		}
	}
	s.memberships = append(s.memberships, *m)
	return true, nil
}

func (s *Store) Remove(_ context.Context, userID, factionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.memberships {
		if existing.UserID == userID && existing.FactionID == factionID {
			s.memberships = append(s.memberships[:i], s.memberships[i+1:]...)
			return nil
		}
	}
	return faction.ErrNotFound
}

func (s *Store) FactionRoster(_ context.Context, factionID string) ([]faction.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []faction.Member
	for _, m := range s.memberships {
		if m.FactionID != factionID {
			continue
		}
		member := faction.Member{Membership: m}
		if u, ok := s.users[m.UserID]; ok {
			member.Username = u.Username
			member.Nickname = u.Nickname
			member.AvatarURL = u.AvatarURL
		}
		out = append(out, member)
	}
	return out, nil
}

func (s *Store) MembershipsOf(_ context.Context, userID string) ([]faction.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []faction.Membership
	for _, m := range s.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- forum.Store ---

func (s *Store) InsertPost(_ context.Context, p *forum.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.posts[p.ID] = &cp
	return nil
}

func (s *Store) GetPost(_ context.Context, id string) (*forum.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, forum.ErrNotFound
	}
	cp := *p
	cp.CommentCount = s.commentCountLocked(id)
	if u, ok := s.users[cp.AuthorID]; ok {
		cp.AuthorUsername = u.Username
	}
	return &cp, nil
}

func (s *Store) ListPosts(_ context.Context, limit, offset int) ([]forum.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]forum.Post, 0, len(s.posts))
	for _, p := range s.posts {
		cp := *p
		cp.CommentCount = s.commentCountLocked(p.ID)
		if u, ok := s.users[cp.AuthorID]; ok {
			cp.AuthorUsername = u.Username
		}
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) IncrementViews(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return forum.ErrNotFound
	}
	p.Views++
	return nil
}

func (s *Store) AddLike(_ context.Context, postID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return 0, forum.ErrNotFound
	}
	p.Likes++
	return p.Likes, nil
}

func (s *Store) InsertComment(_ context.Context, c *forum.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, *c)
	return nil
}

func (s *Store) ListComments(_ context.Context, postID string) ([]forum.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []forum.Comment
	for _, c := range s.comments {
		if c.PostID == postID {
			if u, ok := s.users[c.AuthorID]; ok {
				c.AuthorUsername = u.Username
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) commentCountLocked(postID string) int {
	count := 0
	for _, c := range s.comments {
		if c.PostID == postID {
			count++
		}
	}
	return count
}

// --- moderation.Store ---

// tx adapts the store's facades to moderation.Tx.
type tx struct {
	s *Store
}

func (t tx) Sanctions() sanction.Store    { return t.s }
func (t tx) Admins() privilege.AdminStore { return t.s }
func (t tx) Factions() faction.Store      { return factionFacade{t.s} }
func (t tx) Roles() roles.Store           { return t.s.rolesView() }
func (t tx) Audit() audit.Store           { return t.s }

// WithinTx snapshots the mutable state, runs fn, and restores the snapshot if
// fn fails. Individual store calls take the mutex themselves; the snapshot
// gives per-unit rollback, not cross-request isolation.
func (s *Store) WithinTx(_ context.Context, fn func(tx moderation.Tx) error) error {
	snap := s.snapshot()
	if err := fn(tx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type stateSnapshot struct {
	sanctions   []*sanction.Sanction
	admins      map[string]*privilege.AdminRecord
	roles       map[string]*roles.CustomRole
	memberships []faction.Membership
	audits      []audit.Entry
}

func (s *Store) snapshot() stateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := stateSnapshot{
		sanctions:   make([]*sanction.Sanction, len(s.sanctions)),
		admins:      make(map[string]*privilege.AdminRecord, len(s.admins)),
		roles:       make(map[string]*roles.CustomRole, len(s.roles)),
		memberships: append([]faction.Membership(nil), s.memberships...),
		audits:      append([]audit.Entry(nil), s.audits...),
	}
	for i, row := range s.sanctions {
		cp := *row
		snap.sanctions[i] = &cp
	}
	for k, rec := range s.admins {
		cp := *rec
		snap.admins[k] = &cp
	}
	for k, r := range s.roles {
		cp := *r
		snap.roles[k] = &cp
	}
	return snap
}

func (s *Store) restore(snap stateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sanctions = snap.sanctions
	s.admins = snap.admins
	s.roles = snap.roles
	s.memberships = snap.memberships
	s.audits = snap.audits
}

// factionFacade renames the faction methods back to the faction.Store shape.
type factionFacade struct {
	s *Store
}

func (f factionFacade) Create(ctx context.Context, fac *faction.Faction) error {
	return f.s.CreateFaction(ctx, fac)
}

func (f factionFacade) Get(ctx context.Context, id string) (*faction.Faction, error) {
	return f.s.GetFaction(ctx, id)
}

func (f factionFacade) List(ctx context.Context) ([]faction.Faction, error) {
	return f.s.ListFactions(ctx)
}

func (f factionFacade) Assign(ctx context.Context, m *faction.Membership) (bool, error) {
	return f.s.Assign(ctx, m)
}

func (f factionFacade) Remove(ctx context.Context, userID, factionID string) error {
	return f.s.Remove(ctx, userID, factionID)
}

func (f factionFacade) Roster(ctx context.Context, factionID string) ([]faction.Member, error) {
	return f.s.FactionRoster(ctx, factionID)
}

func (f factionFacade) MembershipsOf(ctx context.Context, userID string) ([]faction.Membership, error) {
	return f.s.MembershipsOf(ctx, userID)
}

// Factions returns the store's faction.Store facade.
func (s *Store) Factions() faction.Store { return factionFacade{s} }
