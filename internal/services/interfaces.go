package services

import (
	"context"
	"time"

	"github.com/fillesume/storefront/internal/animation"
	"github.com/fillesume/storefront/internal/cart"
	"github.com/fillesume/storefront/internal/domain"
	"github.com/fillesume/storefront/internal/interactive"
	"github.com/fillesume/storefront/internal/narrative"
)

// CartService manages the session cart.
type CartService interface {
	Get(ctx context.Context, sessionID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, sessionID, variantID string) (CartView, error)
	Clear(ctx context.Context, sessionID string) (CartView, error)
	Badge(ctx context.Context, sessionID string) (int, error)
	Subscribe(ctx context.Context, sessionID string, fn func(cart.Event)) (func(), error)
}

// CheckoutService turns the session cart into a hosted checkout.
type CheckoutService interface {
	Checkout(ctx context.Context, sessionID string) (CheckoutResult, error)
}

// ContactService accepts contact form submissions.
type ContactService interface {
	Submit(ctx context.Context, cmd ContactCommand) (ContactReceipt, error)
}

// ExperienceService owns the interactive page-view sessions. A session is only
// visible to the owner that started it; any other owner gets
// ErrExperienceNotFound. Mixing events return ErrExperienceLocked until the
// scroll narrative has revealed the overlay.
type ExperienceService interface {
	Start(ctx context.Context, ownerID string) (ExperienceView, error)
	End(ctx context.Context, ownerID, id string) error
	Scroll(ctx context.Context, cmd ScrollCommand) (ScrollResult, error)
	Viewer(ctx context.Context, cmd ViewerCommand) (ViewerView, error)
	ViewerState(ctx context.Context, ownerID, id string) (ViewerView, error)
	Mixing(ctx context.Context, cmd MixingCommand) (MixingView, error)
	MixingState(ctx context.Context, ownerID, id string, withDots bool) (MixingView, error)
	Hero(ctx context.Context, cmd HeroCommand) (HeroView, error)
	Showcase(ctx context.Context, cmd ShowcaseCommand) (ShowcaseView, error)
	Reap(now time.Time) int
	Close()
}

// CartLine is a cart item with display prices.
type CartLine struct {
	domain.CartItem
	UnitPrice string `json:"unitPriceFormatted"`
	LineTotal string `json:"lineTotalFormatted"`
}

// CartView is the cart as shown to the visitor.
type CartView struct {
	Key            string       `json:"key"`
	Lines          []CartLine   `json:"lines"`
	TotalItems     int          `json:"totalItems"`
	Total          domain.Money `json:"total"`
	TotalFormatted string       `json:"totalFormatted"`
}

// AddCartItemCommand adds quantity units of a product variant. An empty
// VariantID selects the product's first variant.
type AddCartItemCommand struct {
	SessionID string
	ProductID string
	VariantID string
	Quantity  int
}

// UpdateCartItemCommand sets a line quantity. Zero or less removes the line.
type UpdateCartItemCommand struct {
	SessionID string
	VariantID string
	Quantity  int
}

// CheckoutResult is where to send the visitor after a successful checkout.
type CheckoutResult struct {
	CheckoutID  string `json:"checkoutId"`
	RedirectURL string `json:"redirectUrl"`
	ItemCount   int    `json:"itemCount"`
}

// ContactCommand is a contact form submission.
type ContactCommand struct {
	SessionID string
	Name      string
	Email     string
	Subject   string
	Message   string
}

// ContactReceipt confirms a delivered submission.
type ContactReceipt struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
	Message    string    `json:"message"`
}

// ExperienceView is the full state of an experience session.
type ExperienceView struct {
	ID        string                `json:"id"`
	StartedAt time.Time             `json:"startedAt"`
	Narrative narrative.Observation `json:"narrative"`
	Viewer    ViewerView            `json:"viewer"`
	Mixing    MixingView            `json:"mixing"`
	Sections  []narrative.Section   `json:"sections"`
}

// ScrollCommand reports scroll progress. A zero Time uses the session clock.
type ScrollCommand struct {
	ID       string
	OwnerID  string
	Progress float64
	Measured bool
	Time     float64
}

// ScrollResult is the sequencer state and the composed frame.
type ScrollResult struct {
	Narrative narrative.Observation `json:"narrative"`
	Frame     narrative.Frame       `json:"frame"`
}

// Viewer actions.
const (
	ViewerDown   = "down"
	ViewerMove   = "move"
	ViewerUp     = "up"
	ViewerToggle = "toggle"
)

// ViewerCommand is a pointer event on the 360° viewer.
type ViewerCommand struct {
	ID      string
	OwnerID string
	Action  string
	DeltaX  float64
}

// ViewerView is the viewer state and the image of the current frame.
type ViewerView struct {
	interactive.Viewer
	FrameURL string `json:"frameUrl"`
}

// Mixing actions.
const (
	MixingDragStart = "drag-start"
	MixingDrop      = "drop"
	MixingInteract  = "interact"
	MixingStop      = "stop"
)

// MixingCommand is a pointer event on the mixing station.
type MixingCommand struct {
	ID         string
	OwnerID    string
	Action     string
	Ingredient interactive.Ingredient
	Point      interactive.Point
	Receptacle interactive.HitRect
}

// MixingView is the game state with its derived presentation.
type MixingView struct {
	Game    interactive.MixingGame                       `json:"game"`
	Phase   interactive.Phase                            `json:"phase"`
	Percent int                                          `json:"percent"`
	Color   string                                       `json:"liquidColor"`
	Heading string                                       `json:"heading"`
	Hint    string                                       `json:"hint,omitempty"`
	Dots    map[interactive.Ingredient][]interactive.Dot `json:"dots,omitempty"`
}

// HeroCommand is one frame of pointer input over the landing page. An empty
// SessionID renders a stateless frame.
type HeroCommand struct {
	SessionID string
	OwnerID   string
	T         float64
	Pointer   animation.Pointer
	Dragging  bool
	Width     int
}

// HeroView is the landing logo and globe for one frame.
type HeroView struct {
	Logo  animation.HeroSnapshot  `json:"logo"`
	Globe animation.GlobeSnapshot `json:"globe"`
}

// Showcase models.
const (
	ShowcaseOlive   = "olive"
	ShowcaseSeaweed = "seaweed"
	ShowcaseFiber   = "fiber"
)

// ShowcaseCommand asks for one frame of a product showcase. A positive
// FixedHeight pins the container height. Geometry adds the wool ball mesh to
// fiber frames.
type ShowcaseCommand struct {
	Model       string
	T           float64
	Width       int
	FixedHeight int
	Geometry    bool
	Seed        uint64
}

// ShowcaseView is the camera, container size and model placement of a frame.
type ShowcaseView struct {
	Model     string              `json:"model"`
	Size      animation.Size      `json:"size"`
	Camera    animation.Camera    `json:"camera"`
	Transform animation.Transform `json:"transform"`
	WoolBall  *animation.WoolBall `json:"woolBall,omitempty"`
}
