package models

// StartData is the payload of the flow entry node.
type StartData struct {
	BaseData
}

// TextData configures a text message node.
type TextData struct {
	BaseData

	Text            string    `json:"text"`
	SplitParagraphs bool      `json:"splitParagraphs,omitempty"`
	ExtractLinks    bool      `json:"extractLinks,omitempty"`
	ListMenu        *ListMenu `json:"listMenu,omitempty"`
}

// ListMenu is an interactive list message attached to a text node.
type ListMenu struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	ButtonText  string            `json:"buttonText"`
	Footer      string            `json:"footer,omitempty"`
	Sections    []ListMenuSection `json:"sections"`
}

type ListMenuSection struct {
	Title string         `json:"title"`
	Rows  []ListMenuItem `json:"rows"`
}

type ListMenuItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MediaData configures the audio, image, video and document nodes.
type MediaData struct {
	BaseData

	MediaURL string `json:"mediaUrl,omitempty"`
	FileID   string `json:"fileId,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// DelayData suspends the session for DelaySeconds.
type DelayData struct {
	BaseData

	DelaySeconds int `json:"delaySeconds" validate:"gte=0"`
}

// VariableData assigns Value (interpolated) to the variable Name.
type VariableData struct {
	BaseData

	Name  string `json:"name"`
	Value string `json:"value"`
}

// ConditionOperator compares a variable with a value.
type ConditionOperator string

const (
	OperatorEqual          ConditionOperator = "=="
	OperatorNotEqual       ConditionOperator = "!="
	OperatorGreater        ConditionOperator = ">"
	OperatorLess           ConditionOperator = "<"
	OperatorGreaterOrEqual ConditionOperator = ">="
	OperatorLessOrEqual    ConditionOperator = "<="
)

// Condition is one branch of a condition node.
type Condition struct {
	Variable string            `json:"variable"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// ConditionData holds the ordered branches of a condition node.
type ConditionData struct {
	BaseData

	Conditions []Condition `json:"conditions"`
}

// InputType selects how an input node matches the customer reply.
type InputType string

const (
	InputTypeText    InputType = "text"
	InputTypeOptions InputType = "options"
)

// InputOption is one multiple-choice answer.
type InputOption struct {
	Text string `json:"text"`
}

// InputConfig carries the capture settings of an input node.
type InputConfig struct {
	VariableName   string `json:"variableName,omitempty"`
	Timeout        int    `json:"timeout,omitempty"`
	FallbackNodeID string `json:"fallbackNodeId,omitempty"`
}

// InputData waits for the next inbound message and branches on it.
type InputData struct {
	BaseData

	InputType InputType     `json:"inputType"`
	Options   []InputOption `json:"options,omitempty"`
	Config    InputConfig   `json:"config"`
}

// CustomerField names the customer attribute an update_customer node mutates.
type CustomerField string

const (
	CustomerFieldFunnel    CustomerField = "funnel"
	CustomerFieldTeam      CustomerField = "team"
	CustomerFieldUser      CustomerField = "user"
	CustomerFieldEmail     CustomerField = "email"
	CustomerFieldPhone     CustomerField = "phone"
	CustomerFieldFacebook  CustomerField = "facebook"
	CustomerFieldInstagram CustomerField = "instagram"
)

// UpdateCustomerData configures an update_customer node. Which of the id
// fields is used depends on Field.
type UpdateCustomerData struct {
	BaseData

	Field    CustomerField `json:"field"`
	FunnelID string        `json:"funnelId,omitempty"`
	StageID  string        `json:"stageId,omitempty"`
	TeamID   string        `json:"teamId,omitempty"`
	UserID   string        `json:"userId,omitempty"`
	Value    string        `json:"value,omitempty"`
}

// OpenAIAPIType selects the kind of generation an openai node performs.
type OpenAIAPIType string

const (
	OpenAITextGeneration  OpenAIAPIType = "textGeneration"
	OpenAIAudioGeneration OpenAIAPIType = "audioGeneration"
	OpenAITextToSpeech    OpenAIAPIType = "textToSpeech"
)

// OpenAITool is a function the model may call. A call routes execution to
// TargetNodeID when set, otherwise to the tool's own handle.
type OpenAITool struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	TargetNodeID string         `json:"targetNodeId,omitempty"`
}

// OpenAIData configures a call to the language model.
type OpenAIData struct {
	BaseData

	APIType      OpenAIAPIType `json:"apiType"`
	Model        string        `json:"model,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	MaxTokens    int           `json:"maxTokens,omitempty"`
	VariableName string        `json:"variableName,omitempty"`
	PromptID     string        `json:"promptId,omitempty"`
	Prompt       string        `json:"prompt,omitempty"`
	MessageType  string        `json:"messageType,omitempty"`
	Voice        string        `json:"voice,omitempty"`
	Tools        []OpenAITool  `json:"tools,omitempty"`
}

// AgentIAData delegates the turn to an external agent.
type AgentIAData struct {
	BaseData

	PromptID     string `json:"promptId"`
	VariableName string `json:"variableName,omitempty"`
}

// JumpToData transfers control to TargetNodeID without an edge.
type JumpToData struct {
	BaseData

	TargetNodeID string `json:"targetNodeId"`
}

// KeyValue is a header or query parameter of a request node.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// VariableMapping copies the value at JSONPath in a response into Variable.
type VariableMapping struct {
	Variable string `json:"variable"`
	JSONPath string `json:"jsonPath"`
}

// RequestData configures an outbound HTTP call.
type RequestData struct {
	BaseData

	Method           string            `json:"method"`
	URL              string            `json:"url"`
	Headers          []KeyValue        `json:"headers,omitempty"`
	Params           []KeyValue        `json:"params,omitempty"`
	Body             string            `json:"body,omitempty"`
	BodyType         string            `json:"bodyType,omitempty"`
	VariableMappings []VariableMapping `json:"variableMappings,omitempty"`
}

// GroupData is a visual annotation only.
type GroupData struct {
	BaseData

	Color  string  `json:"color,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// SystemMessageData injects Text into the model context history.
type SystemMessageData struct {
	BaseData

	Text string `json:"text"`
}
