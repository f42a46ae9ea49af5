package llm

import "google.golang.org/genai"

// Tool names the model may call. The chat engine keys its handler
// registry on these.
const (
	ToolDatasetArticles = "get_dataset_articles"
	ToolTrollResponse   = "trigger_troll_response"
)

// Argument keys of the get_dataset_articles call.
const (
	ArgQuery              = "query"
	ArgMediaType          = "media_type"
	ArgStreamingPlatforms = "streaming_platforms"
	ArgGenres             = "genres"
	ArgWriterFilter       = "writer_filter"
)

// Closed vocabularies the model must pick filter values from. They
// mirror the metadata stored alongside the indexed articles.
var (
	platformEnum = []string{
		"Apple TV+",
		"Amazon Prime Video",
		"כאן 11",
		"HOT",
		"Yes",
		"Disney+",
		"Netflix",
		"קשת 12",
		"רשת 13",
	}

	genreEnum = []string{
		"דרמה",
		"קומדיה",
		"אקשן",
		"מותחן",
		"מדע בדיוני",
		"פנטזיה",
		"אימה",
		"רומנטיקה",
		"פשע",
		"דוקומנטרי",
		"ביוגרפיה",
		"היסטורי",
		"אנימציה",
		"ילדים ולכל המשפחה",
		"מוזיקלי",
		"סאטירה",
		"נוער והתבגרות",
		"משטרה ובלשים",
		"על־טבעי",
		"מלחמה",
		"ספורט",
		"ריאליטי",
		"קומיקס / גיבורי-על",
		"אירוח",
		"סטנד-אפ",
		"תוכנית אקטואליה",
		"לייף סטייל",
		"הרפתקאות",
	}

	writerEnum = []string{
		"חן חדד",
		"אורון שמיר",
		"אורי קליין",
		"נתנאל שלומוביץ",
		"שני ליטמן",
		"פבלו אוטין",
		"ניב הדס",
		"גילי איזיקוביץ",
	}
)

const datasetArticlesDescription = `Use this function to retrieve full review articles about movies or TV shows, or to provide recommendations.

Trigger it whenever the user:
1. Asks for a review, critique, article or detailed information about a specific movie or TV show, whether they give the exact title or only describe it (plot points, actors, director, setting, source material, festival context).
2. Asks for viewing recommendations of any kind. Activate for ALL recommendation requests, with specific criteria (genre, platform, mood, similarity to other titles) or completely open-ended ("What should I watch?", "Recommend a good movie", "Looking for a binge-worthy series").
3. Is trying to identify or remember a show or movie by describing it.
4. Explicitly asks for reviews or recommendations by a named writer, e.g. "What does חן חדד recommend?". Put the writer's name in writer_filter, alone or combined with genre and platform filters.

Do not provide generic textual recommendations from internal knowledge. Always invoke this function for recommendation requests so suggestions come from the review dataset.

The output is a list of review articles published on the Haaretz website, including title, full article text, author and publication date.

Keyword examples: ביקורת, מאמר, כתבה, מידע על, המלצה, המלץ, הצע, מה לראות, סרט, סדרה, דומה ל, לזהות, להיזכר, למצוא את, בכיכובו, בימוי, מבוסס על, מחפש, פסטיבל.`

const trollResponseDescription = `Triggered when the assistant detects trolling or provocative input. Responds with a playful and humorous recommendation for the animated movie 'Trolls' as a gentle way to redirect the conversation back to recommending TV shows and movies while keeping a friendly tone.`

// Tools returns the function declarations attached to every session.
func Tools() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        ToolDatasetArticles,
				Description: datasetArticlesDescription,
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						ArgQuery: {
							Type: genai.TypeString,
							Description: "Concise summary of the user's request containing only key search criteria " +
								"for embedding as a retrieval query: exact or partial title, or descriptive clues " +
								"(plot points, actors, director, festival). Exclude filler words.",
						},
						ArgMediaType: {
							Type: genai.TypeString,
							Description: "Whether the user is asking about a movie or a series, when they say so " +
								"explicitly (for example סרט or סדרה). Optional filter.",
							Enum: []string{"movie", "series"},
						},
						ArgStreamingPlatforms: {
							Type:        genai.TypeArray,
							Description: "Streaming platforms the user is interested in. Optional filter.",
							Items:       &genai.Schema{Type: genai.TypeString, Enum: platformEnum},
						},
						ArgGenres: {
							Type:        genai.TypeArray,
							Description: "Genres the user is interested in. Optional filter.",
							Items:       &genai.Schema{Type: genai.TypeString, Enum: genreEnum},
						},
						ArgWriterFilter: {
							Type: genai.TypeArray,
							Description: "Article authors, when the user explicitly asks for reviews or " +
								"recommendations by one or more named writers. Optional filter.",
							Items: &genai.Schema{Type: genai.TypeString, Enum: writerEnum},
						},
					},
					Required: []string{ArgQuery},
				},
			},
			{
				Name:        ToolTrollResponse,
				Description: trollResponseDescription,
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{},
				},
			},
		},
	}}
}
