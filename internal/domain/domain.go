package domain

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Task struct {
	ID            int64    `json:"id"`
	Description   string   `json:"description"`
	Location      string   `json:"location"`
	EstimatedCost float64  `json:"estimated_cost"`
	FinalCost     *float64 `json:"final_cost,omitempty"`
	Status        string   `json:"status" enum:"Not Started,In Progress,Completed,Cancelled"`
	Priority      string   `json:"priority" enum:"Low,Medium,High,Urgent"`
	Deadline      *string  `json:"deadline,omitempty" format:"date-time"`
	Dependencies  []int64  `json:"dependencies,omitempty"`
	Comments      string   `json:"comments,omitempty"`
	Attachments   []string `json:"attachments,omitempty"`
	BeforeScan    *string  `json:"before_scan,omitempty"`
	AfterScan     *string  `json:"after_scan,omitempty"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

type Estimate struct {
	ID                 int64   `json:"id"`
	TaskIDs            []int64 `json:"task_ids"`
	TotalEstimatedCost float64 `json:"total_estimated_cost"`
	Region             string  `json:"region"`
	Store              string  `json:"store"`
	Manager            string  `json:"manager"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

type Invoice struct {
	ID             int64   `json:"id"`
	TaskIDs        []int64 `json:"task_ids"`
	TotalFinalCost float64 `json:"total_final_cost"`
	Region         string  `json:"region"`
	Store          string  `json:"store"`
	Manager        string  `json:"manager"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

// InventoryItem holds a weak reference to its owning task: the task id is
// stored for lookups only and the item may outlive the task link.
type InventoryItem struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Location  string `json:"location"`
	TaskID    *int64 `json:"task_id,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
