package scoring

// Theme is a named interest category with its keyword list and scoring
// weight. Keywords are matched case-insensitively as substrings against
// an item's title and description.
type Theme struct {
	Name     string
	Keywords []string
	Weight   float64
}

// DefaultThemes returns the built-in interest themes. Order matters: tags
// on a scored item follow theme definition order, not match order.
// Config may replace the whole table at runtime.
func DefaultThemes() []Theme {
	return []Theme{
		{
			Name: "ai-ml",
			Keywords: []string{
				"artificial intelligence", "machine learning", "deep learning",
				"neural network", "gpt", "llm", "chatgpt", "openai", "anthropic",
				"claude", "transformer", "diffusion", "generative ai",
				"langchain", "vector database", "embeddings", "fine-tuning",
				"rag", "retrieval augmented",
			},
			Weight: 1.5,
		},
		{
			Name: "developer-tools",
			Keywords: []string{
				"developer tool", "dev tool", "ide", "code editor", "vscode",
				"vim", "neovim", "terminal", "cli", "command line", "git",
				"github", "gitlab", "devops", "ci/cd", "docker", "kubernetes",
				"terraform", "infrastructure", "api", "sdk", "framework",
				"library",
			},
			Weight: 1.3,
		},
		{
			Name: "programming",
			Keywords: []string{
				"python", "javascript", "typescript", "rust", "golang",
				" go ", // space-padded to avoid matching "google"
				"swift", "kotlin", "java", "c++", "haskell", "elixir", "ruby",
				"rails", "react", "vue", "svelte", "next.js", "compiler",
				"interpreter",
			},
			Weight: 1.0,
		},
		{
			Name: "startup",
			Keywords: []string{
				"startup", "founder", "y combinator", "ycombinator", "venture",
				"funding", "seed round", "series a", "bootstrap", "saas",
				"b2b", "b2c", "product hunt", "launch", "mvp", "pivot",
				"growth", "acquisition",
			},
			Weight: 1.2,
		},
		{
			Name: "open-source",
			Keywords: []string{
				"open source", "open-source", "opensource", "foss",
				"free software", "mit license", "apache license", "gpl",
				"contributor", "maintainer", "pull request",
			},
			Weight: 1.1,
		},
		{
			Name: "security",
			Keywords: []string{
				"security", "cybersecurity", "encryption", "privacy",
				"vulnerability", "exploit", "zero-day", "authentication",
				"oauth", "jwt", "password", "2fa", "firewall", "vpn",
			},
			Weight: 1.2,
		},
		{
			Name: "data",
			Keywords: []string{
				"database", "sql", "nosql", "postgresql", "mysql", "mongodb",
				"redis", "elasticsearch", "data engineering", "data science",
				"analytics", "visualization", "metrics", "etl",
				"data pipeline", "warehouse", "bigquery", "snowflake",
			},
			Weight: 1.0,
		},
		{
			Name: "web-mobile",
			Keywords: []string{
				"web app", "webapp", "mobile app", "ios app", "android app",
				"pwa", "frontend", "backend", "full stack", "fullstack",
				"browser", "webassembly", "wasm",
			},
			Weight: 0.9,
		},
		{
			Name: "productivity",
			Keywords: []string{
				"productivity", "automation", "workflow", "task management",
				"todo", "to-do", "notion", "obsidian", "note-taking",
				"calendar", "scheduling", "time tracking",
			},
			Weight: 0.8,
		},
	}
}
