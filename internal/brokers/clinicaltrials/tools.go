package clinicaltrials

import (
	"context"
	"fmt"

	"github.com/RobinCoderZhao/biobroker/pkg/mcpserver"
	"github.com/RobinCoderZhao/biobroker/pkg/normalize"
)

// Instructions is returned to hosts from initialize.
const Instructions = "Search the ClinicalTrials.gov registry. Search results carry a page token for the next page; get_trial_details returns the full record of an NCT number."

const maxLocations = 10

// Tools returns the registry operations bound to src.
func Tools(src Source, rules normalize.Rules) []mcpserver.Tool {
	h := handlers{src: src, rules: rules}
	return []mcpserver.Tool{
		{
			Name:        "search_trials",
			Description: "Search ClinicalTrials.gov for studies matching a free-text query.",
			Params:      searchParams("query", "Search query"),
			Handler:     h.search(FieldAny, "query"),
		},
		{
			Name:        "get_trial_details",
			Description: "Get detailed information about a clinical trial by its NCT ID.",
			Params: []mcpserver.Param{
				mcpserver.String("nct_id", "NCT identifier of the trial (e.g. NCT01234567)").Require().Matching(`^NCT\d{8}$`),
			},
			Handler: h.details,
		},
		{
			Name:        "find_trials_by_condition",
			Description: "Search for clinical trials studying a medical condition or disease.",
			Params:      searchParams("condition", "Medical condition or disease"),
			Handler:     h.search(FieldCondition, "condition"),
		},
		{
			Name:        "find_trials_by_location",
			Description: "Search for clinical trials recruiting in a location (city, state or country).",
			Params:      searchParams("location", "City, state or country"),
			Handler:     h.search(FieldLocation, "location"),
		},
	}
}

func searchParams(name, description string) []mcpserver.Param {
	return []mcpserver.Param{
		mcpserver.String(name, description).Require(),
		mcpserver.Integer("max_results", "Maximum number of results to return").WithDefault(10).Range(1, 100),
		mcpserver.String("page_token", "Token from a previous result to fetch the next page"),
		mcpserver.Boolean("recruiting_only", "Only return trials that are currently recruiting").WithDefault(false),
	}
}

type handlers struct {
	src   Source
	rules normalize.Rules
}

func (h handlers) search(field Field, param string) mcpserver.Handler {
	return func(ctx context.Context, args mcpserver.Args) (string, error) {
		page, err := h.src.Search(ctx, SearchQuery{
			Field:          field,
			Value:          args.String(param),
			Limit:          args.Int("max_results"),
			PageToken:      args.String("page_token"),
			RecruitingOnly: args.Bool("recruiting_only"),
		})
		if err != nil {
			return "", err
		}
		records := make([]normalize.Record, 0, len(page.Studies))
		for _, s := range page.Studies {
			records = append(records, normalize.Record{}.
				Add("Title", s.Title).
				Add("NCT ID", s.NCTID).
				Add("Status", s.Status).
				AddList("Phase", s.Phases).
				AddList("Conditions", s.Conditions).
				Add("Sponsor", s.Sponsor).
				AddExcerpt("Summary", s.Summary))
		}
		return normalize.List(records, h.rules, footer(page)), nil
	}
}

func (h handlers) details(ctx context.Context, args mcpserver.Args) (string, error) {
	s, err := h.src.Study(ctx, args.String("nct_id"))
	if err != nil {
		return "", err
	}
	locations := s.Locations
	if len(locations) > maxLocations {
		locations = append(locations[:maxLocations:maxLocations], fmt.Sprintf("and %d more", len(s.Locations)-maxLocations))
	}
	rec := normalize.Record{}.
		Add("NCT ID", s.NCTID).
		Add("Brief Title", s.Title).
		Add("Official Title", s.OfficialTitle).
		Add("Status", s.Status).
		AddList("Phase", s.Phases).
		Add("Sponsor", s.Sponsor).
		Add("Study Type", s.StudyType).
		Add("Primary Purpose", s.Purpose).
		Add("Start Date", s.StartDate).
		Add("Enrollment", s.Enrollment).
		AddList("Conditions", s.Conditions).
		AddList("Interventions", s.Interventions).
		AddList("Locations", locations).
		Add("Brief Summary", s.Summary).
		AddExcerpt("Detailed Description", s.Description).
		AddExcerpt("Eligibility", s.Eligibility)
	return normalize.Detail(rec, h.rules), nil
}

func footer(page StudyPage) string {
	if len(page.Studies) == 0 {
		return ""
	}
	out := fmt.Sprintf("Showing %d of %d trials.", len(page.Studies), max(page.Total, len(page.Studies)))
	if page.NextPageToken != "" {
		out += fmt.Sprintf(" Next page token: %s", page.NextPageToken)
	}
	return out
}
