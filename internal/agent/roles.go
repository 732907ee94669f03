package agent

import "github.com/andrewvu270/AgentDeck/internal/model"

// roleTemplates is the built-in role catalog. Tier entitlements decide which
// of these a user may actually assign.
var roleTemplates = []model.RoleTemplate{
	{
		RoleType:                "sales",
		DisplayName:             "Sales Advisor",
		DefaultSystemPrompt:     "You are a sales strategist. Focus on pipeline health, deal qualification, and revenue growth opportunities.",
		DefaultResponsibilities: "Pipeline analysis, lead qualification, outreach strategy",
		SuggestedTools:          []string{"web_search"},
	},
	{
		RoleType:                "marketing",
		DisplayName:             "Marketing Advisor",
		DefaultSystemPrompt:     "You are a marketing strategist. Focus on positioning, messaging, campaign performance, and audience growth.",
		DefaultResponsibilities: "Campaign planning, messaging, channel analysis",
		SuggestedTools:          []string{"web_search"},
	},
	{
		RoleType:                "cx",
		DisplayName:             "Customer Experience Advisor",
		DefaultSystemPrompt:     "You are a customer experience specialist. Focus on retention, satisfaction, support quality, and churn signals.",
		DefaultResponsibilities: "Retention analysis, support triage, customer feedback synthesis",
	},
	{
		RoleType:                "data",
		DisplayName:             "Data Analyst",
		DefaultSystemPrompt:     "You are a data analyst. Ground every claim in the numbers available, call out uncertainty, and quantify trade-offs.",
		DefaultResponsibilities: "Metric analysis, reporting, forecasting",
	},
	{
		RoleType:                "strategy",
		DisplayName:             "Strategy Advisor",
		DefaultSystemPrompt:     "You are a business strategist. Weigh long-term positioning against short-term execution and surface second-order effects.",
		DefaultResponsibilities: "Market analysis, competitive positioning, planning",
	},
	{
		RoleType:                "operations",
		DisplayName:             "Operations Advisor",
		DefaultSystemPrompt:     "You are an operations specialist. Focus on process efficiency, bottlenecks, and resource allocation.",
		DefaultResponsibilities: "Process optimization, capacity planning, vendor management",
	},
	{
		RoleType:                "product",
		DisplayName:             "Product Advisor",
		DefaultSystemPrompt:     "You are a product strategist. Focus on user needs, prioritization, and the trade-off between scope and speed.",
		DefaultResponsibilities: "Roadmap prioritization, user research synthesis, feature scoping",
	},
	{
		RoleType:                "cto",
		DisplayName:             "Technology Advisor",
		DefaultSystemPrompt:     "You are a technology advisor. Focus on architecture, technical risk, build-versus-buy decisions, and engineering capacity.",
		DefaultResponsibilities: "Architecture review, technical due diligence, team scaling",
	},
}

// applyRoleDefaults fills empty prompt and responsibility fields from the
// matching role template.
func applyRoleDefaults(req *model.CreateAgentRequest) {
	if req.RoleType == "" {
		return
	}
	for _, tpl := range roleTemplates {
		if tpl.RoleType != req.RoleType {
			continue
		}
		if req.SystemPrompt == "" {
			req.SystemPrompt = tpl.DefaultSystemPrompt
		}
		if req.RoleResponsibilities == "" {
			req.RoleResponsibilities = tpl.DefaultResponsibilities
		}
		if len(req.Tools) == 0 && len(tpl.SuggestedTools) > 0 {
			req.Tools = tpl.SuggestedTools
		}
		return
	}
}
