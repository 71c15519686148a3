// dto.go — типы запросов и ответов API и маппинг из доменных моделей.
// Имена JSON-полей совпадают с api/openapi.yaml.
package handlers

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/pastorale/internal/domain/fidelisation"
	"github.com/bigkaa/pastorale/internal/domain/kpi"
	"github.com/bigkaa/pastorale/internal/domain/model"
	"github.com/bigkaa/pastorale/internal/domain/projection"
	"github.com/bigkaa/pastorale/internal/domain/rbac"
	"github.com/bigkaa/pastorale/internal/service"
)

// ListResponse — обёртка списка.
type ListResponse[T any] struct {
	Items []T `json:"items"`
}

func listOf[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items}
}

// --- Актор ---

// ActorResponse — контекст актора (GET /me).
type ActorResponse struct {
	UserID           string   `json:"userId"`
	Username         string   `json:"username"`
	Role             string   `json:"role"`
	City             string   `json:"city,omitempty"`
	Department       string   `json:"department,omitempty"`
	AssignedMonths   []string `json:"assignedMonths"`
	AssignedSectorID string   `json:"assignedSectorId,omitempty"`
	AssignedFiIDs    []string `json:"assignedFiIds"`
	VisitorFields    []string `json:"visitorFields"`
}

func mapActor(a *rbac.Actor) ActorResponse {
	return ActorResponse{
		UserID:           a.UserID,
		Username:         a.Username,
		Role:             string(a.Role),
		City:             a.City,
		Department:       a.Department,
		AssignedMonths:   nonNil(a.AssignedMonths),
		AssignedSectorID: a.AssignedSectorID,
		AssignedFiIDs:    nonNil(a.AssignedFiIDs),
		VisitorFields:    projection.FieldsFor(a.Role),
	}
}

// --- Посетители ---

// VisitorPageResponse — страница спроецированных посетителей.
type VisitorPageResponse struct {
	Fields  []string            `json:"fields"`
	Items   []projection.Record `json:"items"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	HasMore bool                `json:"hasMore"`
}

func mapVisitorPage(p *service.VisitorPage) VisitorPageResponse {
	items := p.Items
	if items == nil {
		items = []projection.Record{}
	}
	return VisitorPageResponse{
		Fields:  p.Fields,
		Items:   items,
		Total:   p.Total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasMore,
	}
}

// VisitorCreate — тело POST /visitors.
type VisitorCreate struct {
	Firstname      string             `json:"firstname"`
	Lastname       string             `json:"lastname"`
	Phone          string             `json:"phone"`
	Email          string             `json:"email"`
	ArrivalChannel string             `json:"arrivalChannel"`
	City           string             `json:"city"`
	VisitDate      openapi_types.Date `json:"visitDate"`
	Types          []string           `json:"types"`
	EJP            bool               `json:"ejp"`
}

func (c VisitorCreate) input() service.VisitorInput {
	return service.VisitorInput{
		Firstname:      c.Firstname,
		Lastname:       c.Lastname,
		Phone:          c.Phone,
		Email:          c.Email,
		ArrivalChannel: c.ArrivalChannel,
		City:           c.City,
		VisitDate:      c.VisitDate.Time,
		Types:          c.Types,
		EJP:            c.EJP,
	}
}

// VisitorUpdate — тело PATCH /visitors/{id}; отсутствующие поля не меняются.
type VisitorUpdate struct {
	Firstname      *string             `json:"firstname,omitempty"`
	Lastname       *string             `json:"lastname,omitempty"`
	Phone          *string             `json:"phone,omitempty"`
	Email          *string             `json:"email,omitempty"`
	ArrivalChannel *string             `json:"arrivalChannel,omitempty"`
	City           *string             `json:"city,omitempty"`
	VisitDate      *openapi_types.Date `json:"visitDate,omitempty"`
	Types          *[]string           `json:"types,omitempty"`
	EJP            *bool               `json:"ejp,omitempty"`
}

func (u VisitorUpdate) patch() model.VisitorPatch {
	p := model.VisitorPatch{
		Firstname:      u.Firstname,
		Lastname:       u.Lastname,
		Phone:          u.Phone,
		Email:          u.Email,
		ArrivalChannel: u.ArrivalChannel,
		City:           u.City,
		EJP:            u.EJP,
	}
	if u.VisitDate != nil {
		t := u.VisitDate.Time
		p.VisitDate = &t
	}
	if u.Types != nil {
		types := make([]model.VisitorType, 0, len(*u.Types))
		for _, t := range *u.Types {
			types = append(types, model.VisitorType(t))
		}
		p.Types = &types
	}
	return p
}

// --- Секторы, FI, участники ---

// SecteurResponse — сектор.
type SecteurResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapSecteur(s *model.Secteur) SecteurResponse {
	return SecteurResponse{ID: s.ID, Name: s.Name, City: s.City, CreatedAt: s.CreatedAt}
}

// FamilleResponse — FI. piloteId — первый пилот (устаревшее поле).
type FamilleResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SecteurID string    `json:"secteurId"`
	City      string    `json:"city"`
	PiloteID  *string   `json:"piloteId"`
	PiloteIDs []string  `json:"piloteIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func mapFamille(f *model.Famille) FamilleResponse {
	return FamilleResponse{
		ID:        f.ID,
		Name:      f.Name,
		SecteurID: f.SecteurID,
		City:      f.City,
		PiloteID:  f.PiloteID(),
		PiloteIDs: nonNil(f.PiloteIDs),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// FamilleUpdate — тело PATCH /familles/{id}.
type FamilleUpdate struct {
	Name      *string   `json:"name,omitempty"`
	SecteurID *string   `json:"secteurId,omitempty"`
	PiloteID  *string   `json:"piloteId,omitempty"`
	PiloteIDs *[]string `json:"piloteIds,omitempty"`
}

// MembreResponse — участник FI.
type MembreResponse struct {
	ID        string    `json:"id"`
	FamilleID string    `json:"familleId"`
	VisitorID *string   `json:"visitorId"`
	Firstname string    `json:"firstname"`
	Lastname  string    `json:"lastname"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapMembre(m *model.Membre) MembreResponse {
	return MembreResponse{
		ID:        m.ID,
		FamilleID: m.FamilleID,
		VisitorID: m.VisitorID,
		Firstname: m.Firstname,
		Lastname:  m.Lastname,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
	}
}

// --- Bergeries ---

// BergerieResponse — bergerie.
type BergerieResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapBergerie(b *model.Bergerie) BergerieResponse {
	return BergerieResponse{ID: b.ID, Name: b.Name, City: b.City, OwnerID: b.OwnerID, CreatedAt: b.CreatedAt}
}

// BergerieMembreResponse — участник bergerie.
type BergerieMembreResponse struct {
	ID            string    `json:"id"`
	BergerieID    string    `json:"bergerieId"`
	VisitorID     *string   `json:"visitorId"`
	Firstname     string    `json:"firstname"`
	Lastname      string    `json:"lastname"`
	ManualStatus  *string   `json:"manualStatus"`
	ManualComment *string   `json:"manualComment"`
	CreatedAt     time.Time `json:"createdAt"`
}

func mapBergerieMembre(m *model.BergerieMembre) BergerieMembreResponse {
	return BergerieMembreResponse{
		ID:            m.ID,
		BergerieID:    m.BergerieID,
		VisitorID:     m.VisitorID,
		Firstname:     m.Firstname,
		Lastname:      m.Lastname,
		ManualStatus:  m.ManualStatus,
		ManualComment: m.ManualComment,
		CreatedAt:     m.CreatedAt,
	}
}

// --- Присутствие ---

// PresenceCreate — тело POST /presences.
type PresenceCreate struct {
	SubjectKind string             `json:"subjectKind"`
	SubjectID   string             `json:"subjectId"`
	Date        openapi_types.Date `json:"date"`
	Type        string             `json:"type"`
	Present     bool               `json:"present"`
}

// PresenceResponse — отметка присутствия.
type PresenceResponse struct {
	ID          string             `json:"id"`
	SubjectKind string             `json:"subjectKind"`
	SubjectID   string             `json:"subjectId"`
	Date        openapi_types.Date `json:"date"`
	Bucket      string             `json:"bucket"`
	Present     bool               `json:"present"`
	RecordedBy  string             `json:"recordedBy"`
}

func mapPresence(p *model.Presence) PresenceResponse {
	return PresenceResponse{
		ID:          p.ID,
		SubjectKind: string(p.SubjectKind),
		SubjectID:   p.SubjectID,
		Date:        openapi_types.Date{Time: p.Date},
		Bucket:      p.Bucket,
		Present:     p.Present,
		RecordedBy:  p.RecordedBy,
	}
}

// --- Фиделизация ---

// WeeklyRateResponse — посещаемость за неделю.
type WeeklyRateResponse struct {
	WeekStart     openapi_types.Date `json:"weekStart"`
	PresentCount  int                `json:"presentCount"`
	EligibleCount int                `json:"eligibleCount"`
	RatePercent   int                `json:"ratePercent"`
}

func mapRates(rates []fidelisation.WeeklyRate) []WeeklyRateResponse {
	out := make([]WeeklyRateResponse, 0, len(rates))
	for _, r := range rates {
		out = append(out, WeeklyRateResponse{
			WeekStart:     openapi_types.Date{Time: r.WeekStart},
			PresentCount:  r.PresentCount,
			EligibleCount: r.EligibleCount,
			RatePercent:   r.RatePercent,
		})
	}
	return out
}

// FidelisationResponse — сводка фиделизации посетителей.
type FidelisationResponse struct {
	TotalVisitors    int                  `json:"totalVisitors"`
	TotalNewArrivals int                  `json:"totalNewArrivals"`
	TotalNewConverts int                  `json:"totalNewConverts"`
	WeeklyRates      []WeeklyRateResponse `json:"weeklyRates"`
	Jeudi            []WeeklyRateResponse `json:"jeudi"`
	Dimanche         []WeeklyRateResponse `json:"dimanche"`
	Degraded         bool                 `json:"degraded"`
}

func mapSummary(s *fidelisation.Summary) FidelisationResponse {
	return FidelisationResponse{
		TotalVisitors:    s.TotalVisitors,
		TotalNewArrivals: s.TotalNewArrivals,
		TotalNewConverts: s.TotalNewConverts,
		WeeklyRates:      mapRates(s.WeeklyRates),
		Jeudi:            mapRates(s.Jeudi),
		Dimanche:         mapRates(s.Dimanche),
		Degraded:         s.Degraded,
	}
}

// FIStatResponse — показатели одной FI.
type FIStatResponse struct {
	FamilleID string `json:"familleId"`
	Name      string `json:"name"`
	Membres   int    `json:"membres"`
	Present   int    `json:"present"`
	Fideles   int    `json:"fideles"`
	Rate      int    `json:"rate"`
}

// FISummaryResponse — сводка по FI.
type FISummaryResponse struct {
	Mode          string           `json:"mode"`
	City          string           `json:"city,omitempty"`
	TotalFamilles int              `json:"totalFamilles"`
	TotalMembres  int              `json:"totalMembres"`
	TotalPresent  int              `json:"totalPresent"`
	TotalFideles  int              `json:"totalFideles"`
	Rate          int              `json:"rate"`
	Familles      []FIStatResponse `json:"familles"`
	Degraded      bool             `json:"degraded"`
}

func mapFISummary(s *fidelisation.FISummary) FISummaryResponse {
	out := FISummaryResponse{
		Mode:          string(s.Mode),
		City:          s.City,
		TotalFamilles: s.TotalFamilles,
		TotalMembres:  s.TotalMembres,
		TotalPresent:  s.TotalPresent,
		TotalFideles:  s.TotalFideles,
		Rate:          s.Rate,
		Familles:      make([]FIStatResponse, 0, len(s.Familles)),
		Degraded:      s.Degraded,
	}
	for _, f := range s.Familles {
		out.Familles = append(out.Familles, FIStatResponse(f))
	}
	return out
}

// --- KPI ---

// KpiRecordResponse — запись KPI за месяц.
type KpiRecordResponse struct {
	SubjectKind  string         `json:"subjectKind"`
	SubjectID    string         `json:"subjectId"`
	Month        string         `json:"month"`
	Indicators   kpi.Indicators `json:"indicators"`
	Score        int            `json:"score"`
	Level        string         `json:"level"`
	TableVersion string         `json:"tableVersion"`
	MaxScore     int            `json:"maxScore"`
	UpdatedBy    string         `json:"updatedBy,omitempty"`
	UpdatedAt    *time.Time     `json:"updatedAt"`
}

// mapKpiRecord — maxScore по текущей таблице; версия записи сохраняется.
func mapKpiRecord(r kpi.Record, current kpi.Table) KpiRecordResponse {
	out := KpiRecordResponse{
		SubjectKind:  string(r.SubjectKind),
		SubjectID:    r.SubjectID,
		Month:        r.Month,
		Indicators:   r.Indicators,
		Score:        r.Score,
		Level:        r.Level,
		TableVersion: r.TableVersion,
		MaxScore:     current.MaxScore,
		UpdatedBy:    r.UpdatedBy,
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// KpiStatusResponse — вычисленный и итоговый статус.
type KpiStatusResponse struct {
	Computed  kpi.Computed  `json:"computed"`
	Override  *kpi.Override `json:"override"`
	Effective string        `json:"effective"`
}

func mapKpiStatus(s kpi.Status) KpiStatusResponse {
	return KpiStatusResponse{Computed: s.Computed, Override: s.Override, Effective: s.Effective()}
}

// KpiHistoryResponse — история KPI субъекта.
type KpiHistoryResponse struct {
	SubjectKind    string              `json:"subjectKind"`
	SubjectID      string              `json:"subjectId"`
	Name           string              `json:"name"`
	Records        []KpiRecordResponse `json:"records"`
	Status         KpiStatusResponse   `json:"status"`
	CurrentVersion string              `json:"currentVersion"`
}

func mapKpiHistory(h *service.KpiHistory) KpiHistoryResponse {
	out := KpiHistoryResponse{
		SubjectKind:    string(h.Subject.Kind),
		SubjectID:      h.Subject.ID,
		Name:           h.Subject.Name,
		Records:        make([]KpiRecordResponse, 0, len(h.Records)),
		Status:         mapKpiStatus(h.Status),
		CurrentVersion: h.Current.Version,
	}
	for _, r := range h.Records {
		out.Records = append(out.Records, mapKpiRecord(r, h.Current))
	}
	return out
}

// KpiSubjectStatusResponse — статус одного субъекта в списке.
type KpiSubjectStatusResponse struct {
	SubjectID string            `json:"subjectId"`
	Name      string            `json:"name"`
	Status    KpiStatusResponse `json:"status"`
}

// ManualStatusRequest — тело PUT /kpi/{kind}/{id}/status; null снимает статус.
type ManualStatusRequest struct {
	Status  *string `json:"status"`
	Comment *string `json:"comment"`
}

// KpiTablesResponse — таблицы весов.
type KpiTablesResponse struct {
	Current string      `json:"current"`
	Tables  []kpi.Table `json:"tables"`
}

// --- Мероприятия ---

// EventResponse — мероприятие.
type EventResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	City      string    `json:"city"`
	StartsAt  time.Time `json:"startsAt"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapEvent(e *model.Event) EventResponse {
	return EventResponse{
		ID:        e.ID,
		Title:     e.Title,
		City:      e.City,
		StartsAt:  e.StartsAt,
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt,
	}
}

// RSVPResponse — ответ на приглашение.
type RSVPResponse struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapRSVP(r *model.RSVP) RSVPResponse {
	return RSVPResponse{
		ID:        r.ID,
		EventID:   r.EventID,
		Name:      r.Name,
		Email:     r.Email,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

// --- Пользователи ---

// UserResponse — профиль пользователя без хэша пароля.
type UserResponse struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Role             string     `json:"role"`
	City             string     `json:"city,omitempty"`
	AssignedMonths   []string   `json:"assignedMonths"`
	AssignedSectorID *string    `json:"assignedSectorId"`
	AssignedFiID     *string    `json:"assignedFiId"`
	AssignedFiIDs    []string   `json:"assignedFiIds"`
	PasswordResetAt  *time.Time `json:"passwordResetAt"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func mapUser(u *model.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		Role:             string(u.Role),
		City:             u.City,
		AssignedMonths:   nonNil(u.AssignedMonths),
		AssignedSectorID: u.AssignedSectorID,
		AssignedFiID:     u.AssignedFiID(),
		AssignedFiIDs:    nonNil(u.AssignedFiIDs),
		PasswordResetAt:  u.PasswordResetAt,
		CreatedAt:        u.CreatedAt,
	}
}

// UserListResponse — страница профилей.
type UserListResponse struct {
	Items  []UserResponse `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// PasswordReset — тело POST /users/{id}/password.
type PasswordReset struct {
	Password string `json:"password"`
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
