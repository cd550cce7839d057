package catalog

import "botchat/model"

// DefaultSuppliers returns a fresh copy of the built-in supplier table.
func DefaultSuppliers() []model.Supplier {
	return []model.Supplier{
		{
			Name:       "deepseek",
			Label:      "DeepSeek",
			Logo:       "deepseek",
			APIURL:     "https://api.deepseek.com",
			DocsURL:    "https://api-docs.deepseek.com",
			WebsiteURL: "https://www.deepseek.com",
			APIKeyURL:  "https://platform.deepseek.com/api_keys",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "cac88f76-fc11-4fa8-9654-9b2f6cca9fbb",
					GroupName: "DeepSeek",
					Models: []model.Model{
						{ID: "deepseek-reasoner", Name: "DeepSeek-R1", Skills: []string{"reasoning"}},
						{ID: "deepseek-chat", Name: "DeepSeek-V3"},
					},
				},
			},
		},
		{
			Name:       "siliconflow",
			Label:      "SiliconFlow",
			Logo:       "siliconflow",
			APIURL:     "https://api.siliconflow.cn/v1",
			DocsURL:    "https://docs.siliconflow.cn",
			WebsiteURL: "https://siliconflow.cn",
			APIKeyURL:  "https://cloud.siliconflow.cn/account/ak",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "bca0276d-be20-4a28-9570-89a704428e23",
					GroupName: "DeepSeek-ai",
					Models: []model.Model{
						{ID: "deepseek-ai/DeepSeek-R1", Name: "DeepSeek-R1", Skills: []string{"reasoning"}},
						{ID: "deepseek-ai/DeepSeek-V3", Name: "DeepSeek-V3"},
					},
				},
				{
					ID:        "e82a60ad-5a6d-42ca-aec5-2ba5c0b3fa39",
					GroupName: "Qwen",
					Models: []model.Model{
						{ID: "Qwen/Qwen2.5-7B-Instruct", Name: "Qwen/Qwen2.5-7B-Instruct"},
					},
				},
			},
		},
		{
			Name:       "openai",
			Label:      "ChatGPT",
			Logo:       "openai",
			APIURL:     "https://api.openai.com/v1",
			DocsURL:    "https://platform.openai.com/docs",
			WebsiteURL: "https://openai.com",
			APIKeyURL:  "https://platform.openai.com/api-keys",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "541dfad0-95b1-45ac-9ecf-e5ef1d263172",
					GroupName: "GPT 4o",
					Models: []model.Model{
						{ID: "gpt-4o", Name: "GPT-4o"},
						{ID: "gpt-4o-mini", Name: "GPT-4o-mini"},
					},
				},
				{
					ID:        "051a5563-4883-4cb3-a233-2aac8afba5e8",
					GroupName: "o1",
					Models: []model.Model{
						{ID: "o1-mini", Name: "o1-mini", Skills: []string{"reasoning"}},
						{ID: "o1-preview", Name: "o1-preview", Skills: []string{"reasoning"}},
					},
				},
			},
		},
		{
			Name:       "claude",
			Label:      "Claude",
			Logo:       "claude",
			APIURL:     "https://api.anthropic.com/v1",
			DocsURL:    "https://docs.anthropic.com",
			WebsiteURL: "https://www.anthropic.com",
			APIKeyURL:  "https://console.anthropic.com/settings/keys",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "aacaaf53-fb64-48bb-a863-4effc9c32e0b",
					GroupName: "Claude Sonnet",
					Models: []model.Model{
						{ID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5"},
					},
				},
			},
		},
		{
			Name:       "kimi",
			Label:      "Kimi",
			Logo:       "kimi",
			APIURL:     "https://api.moonshot.cn/v1",
			DocsURL:    "https://platform.moonshot.cn/docs",
			WebsiteURL: "https://kimi.moonshot.cn",
			APIKeyURL:  "https://platform.moonshot.cn/console/api-keys",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "1677dc3a-a0b1-4c08-ad62-f55296b5c4ef",
					GroupName: "moonshot-v1",
					Models: []model.Model{
						{ID: "moonshot-v1-auto", Name: "moonshot-v1-auto"},
					},
				},
			},
		},
		{
			Name:       "zhipu",
			Label:      "智谱清言",
			Logo:       "zhipu",
			APIURL:     "https://open.bigmodel.cn/api/paas/v4",
			DocsURL:    "https://open.bigmodel.cn/dev/api",
			WebsiteURL: "https://open.bigmodel.cn",
			APIKeyURL:  "https://open.bigmodel.cn/usercenter/apikeys",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "d68a89a3-ba5f-443c-9d0b-0eb014355678",
					GroupName: "GLM-Zero",
					Models: []model.Model{
						{ID: "GLM-Zero-Preview", Name: "GLM-Zero-Preview", Skills: []string{"reasoning"}},
					},
				},
			},
		},
		{
			Name:       "openrouter",
			Label:      "OpenRouter",
			Logo:       "openrouter",
			APIURL:     "https://openrouter.ai/api/v1",
			DocsURL:    "https://openrouter.ai/docs",
			WebsiteURL: "https://openrouter.ai",
			APIKeyURL:  "https://openrouter.ai/settings/keys",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "5b0f6f3e-0a52-4c1e-9a53-3f7c1b2d9e10",
					GroupName: "Gemini",
					Models: []model.Model{
						{ID: "google/gemini-2.0-flash-lite-preview-02-05:free", Name: "Gemini-2-free"},
					},
				},
				{
					ID:        "8e4d2c71-6b39-4f0a-b1e5-7a2c9d3f4e81",
					GroupName: "Anthropic",
					Models: []model.Model{
						{ID: "anthropic/claude-3.7-sonnet:beta", Name: "Claude-3.7-Sonnet"},
					},
				},
			},
		},
		{
			Name:       "huoshan",
			Label:      "火山引擎",
			Logo:       "huoshan",
			APIURL:     "https://ark.cn-beijing.volces.com/api/v3",
			DocsURL:    "https://www.volcengine.com/docs/82379",
			WebsiteURL: "https://www.volcengine.com",
			APIKeyURL:  "https://console.volcengine.com/ark/region:ark+cn-beijing/apiKey",
			IsDefault:  true,
			ModelGroups: []model.ModelGroup{
				{
					ID:        "0c7e1a94-2d5b-4b8f-8e36-51f4a7c2d9b3",
					GroupName: "火山引擎-DeepSeek",
					Models: []model.Model{
						{ID: "deepseek-r1-250120", Name: "DeepSeek-R1-250120", Skills: []string{"reasoning"}},
						{ID: "deepseek-v3-241226", Name: "DeepSeek-V3-241226"},
					},
				},
			},
		},
	}
}
