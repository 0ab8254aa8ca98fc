// Package clinicaltrials exposes the ClinicalTrials.gov registry as broker tools.
package clinicaltrials

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/RobinCoderZhao/biobroker/internal/config"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
	"github.com/RobinCoderZhao/biobroker/pkg/toolerr"
	"github.com/RobinCoderZhao/biobroker/pkg/upstream"
)

// Field selects which part of a study record a search matches.
type Field string

const (
	FieldAny       Field = "query.term"
	FieldCondition Field = "query.cond"
	FieldLocation  Field = "query.locn"
)

// Study is one registered clinical study.
type Study struct {
	NCTID         string
	Title         string
	OfficialTitle string
	Status        string
	Phases        []string
	StudyType     string
	Purpose       string
	Sponsor       string
	Conditions    []string
	Interventions []string
	StartDate     string
	Enrollment    string
	Summary       string
	Description   string
	Eligibility   string
	Locations     []string
}

// StudyPage is one page of search results. NextPageToken is empty on the
// last page.
type StudyPage struct {
	Studies       []Study
	Total         int
	NextPageToken string
}

// SearchQuery selects one page of studies.
type SearchQuery struct {
	Field          Field
	Value          string
	Limit          int
	PageToken      string
	RecruitingOnly bool
}

// Source is the registry capability the tools are built on.
type Source interface {
	Search(ctx context.Context, q SearchQuery) (StudyPage, error)
	Study(ctx context.Context, nctID string) (Study, error)
}

// Client talks to the ClinicalTrials.gov v2 API.
type Client struct {
	api *upstream.Client
}

// NewClient creates a ClinicalTrials.gov client.
func NewClient(cfg config.ClinicalTrialsConfig, timeout time.Duration, logger *slog.Logger, opts ...upstream.Option) *Client {
	base := []upstream.Option{
		upstream.WithTimeout(timeout),
		upstream.WithLogger(logger),
		upstream.WithDefaultParams(url.Values{"format": {"json"}}),
	}
	return &Client{api: upstream.New("ClinicalTrials.gov", cfg.BaseURL, append(base, opts...)...)}
}

// Search finds studies whose q.Field matches q.Value.
func (c *Client) Search(ctx context.Context, q SearchQuery) (StudyPage, error) {
	params := url.Values{
		string(q.Field): {q.Value},
		"pageSize":      {strconv.Itoa(q.Limit)},
		"countTotal":    {"true"},
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}
	if q.RecruitingOnly {
		params.Set("filter.overallStatus", "RECRUITING")
	}
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    "studies",
		Params:  params,
		Key:     q.Value,
		KeyName: "search value",
	})
	if err != nil {
		return StudyPage{}, err
	}

	page := StudyPage{
		Total:         int(tree.Get("totalCount").Int()),
		NextPageToken: tree.Get("nextPageToken").String(),
	}
	for _, s := range tree.Get("studies").Array() {
		page.Studies = append(page.Studies, study(s))
	}
	return page, nil
}

// Study fetches one study by NCT number.
func (c *Client) Study(ctx context.Context, nctID string) (Study, error) {
	tree, err := c.api.FetchTree(ctx, upstream.Query{
		Path:    "studies/" + url.PathEscape(nctID),
		Key:     nctID,
		KeyName: "nct_id",
	})
	if err != nil {
		if upstream.IsNotFound(err) {
			return Study{}, toolerr.NotFound("clinical trial", nctID)
		}
		return Study{}, err
	}
	s := study(tree)
	if s.NCTID == "" {
		return Study{}, toolerr.NotFound("clinical trial", nctID)
	}
	return s, nil
}

func study(r gjson.Result) Study {
	p := r.Get("protocolSection")
	s := Study{
		NCTID:         p.Get("identificationModule.nctId").String(),
		Title:         p.Get("identificationModule.briefTitle").String(),
		OfficialTitle: p.Get("identificationModule.officialTitle").String(),
		Status:        p.Get("statusModule.overallStatus").String(),
		StudyType:     p.Get("designModule.studyType").String(),
		Purpose:       p.Get("designModule.designInfo.primaryPurpose").String(),
		Sponsor:       p.Get("sponsorCollaboratorsModule.leadSponsor.name").String(),
		StartDate:     p.Get("statusModule.startDateStruct.date").String(),
		Enrollment:    p.Get("designModule.enrollmentInfo.count").String(),
		Summary:       p.Get("descriptionModule.briefSummary").String(),
		Description:   p.Get("descriptionModule.detailedDescription").String(),
		Eligibility:   p.Get("eligibilityModule.eligibilityCriteria").String(),
		Phases:        stringList(p.Get("designModule.phases")),
		Conditions:    stringList(p.Get("conditionsModule.conditions")),
		Interventions: stringList(p.Get("armsInterventionsModule.interventions.#.name")),
	}
	for _, loc := range p.Get("contactsLocationsModule.locations").Array() {
		s.Locations = append(s.Locations, normalize.JoinList([]string{
			loc.Get("facility").String(),
			loc.Get("city").String(),
			loc.Get("state").String(),
			loc.Get("country").String(),
		}))
	}
	return s
}

func stringList(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}
