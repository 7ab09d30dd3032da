// Package v1 contains the Flow CRD types.
package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/klejdi94/quill/core"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced
// +kubebuilder:printcolumn:name="Flow",type=string,JSONPath=`.spec.name`
// +kubebuilder:printcolumn:name="Synced",type=boolean,JSONPath=`.status.synced`

// Flow declares one content-generation flow to publish to a quill catalog store.
type Flow struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   FlowSpec   `json:"spec,omitempty"`
	Status FlowStatus `json:"status,omitempty"`
}

// FlowSpec is a flow definition. An empty name defaults to the object name.
type FlowSpec struct {
	core.Flow `json:",inline"`
}

// FlowStatus reports whether the flow reached the store.
type FlowStatus struct {
	Synced             bool   `json:"synced"`
	FlowName           string `json:"flowName,omitempty"`
	ObservedGeneration int64  `json:"observedGeneration,omitempty"`
	LastSyncTime       string `json:"lastSyncTime,omitempty"`
	Message            string `json:"message,omitempty"`
}

// +kubebuilder:object:root=true

// FlowList contains a list of Flow.
type FlowList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Flow `json:"items"`
}

// FlowName is the catalog name the object publishes under.
func (f *Flow) FlowName() string {
	if f.Spec.Name != "" {
		return f.Spec.Name
	}
	return f.Name
}

// DeepCopyObject implements runtime.Object.
func (f *Flow) DeepCopyObject() runtime.Object {
	if f == nil {
		return nil
	}
	out := &Flow{}
	f.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (f *Flow) DeepCopyInto(out *Flow) {
	*out = *f
	out.TypeMeta = f.TypeMeta
	f.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	f.Spec.DeepCopyInto(&out.Spec)
	out.Status = f.Status
}

// DeepCopyInto copies FlowSpec.
func (s *FlowSpec) DeepCopyInto(out *FlowSpec) {
	out.Flow = *s.Flow.Copy()
}

// DeepCopyObject implements runtime.Object for FlowList.
func (l *FlowList) DeepCopyObject() runtime.Object {
	if l == nil {
		return nil
	}
	out := &FlowList{}
	l.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the list into out.
func (l *FlowList) DeepCopyInto(out *FlowList) {
	*out = *l
	out.TypeMeta = l.TypeMeta
	l.ListMeta.DeepCopyInto(&out.ListMeta)
	if l.Items != nil {
		out.Items = make([]Flow, len(l.Items))
		for i := range l.Items {
			l.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}
